// Package device is a typed client for the clock board command set.
package device

import (
	"io"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"wdtclock/core"
	"wdtclock/host/reference"
	"wdtclock/protocol"
)

var log = logger.GetGoI2PLogger()

// TimeReading is a time_response
type TimeReading struct {
	Epoch  core.Epoch
	Status core.Status
}

// Time returns the reading as a UTC time
func (r TimeReading) Time() time.Time {
	return reference.FromEpoch(r.Epoch)
}

// Calibration is a calibration_response
type Calibration struct {
	MicrosPerInterrupt uint32
	Interrupts         uint32
	PendingMicros      uint32
	State              core.CalibrationState
}

// TuneReply is a tune_response
type TuneReply struct {
	Result             core.TuneResult
	MicrosPerInterrupt uint32
}

// Client talks to one board. Calls are serialised by the transport.
type Client struct {
	tr      *protocol.HostTransport
	Timeout time.Duration
}

// NewClient starts a transport over port. Close releases both.
func NewClient(port io.ReadWriteCloser) *Client {
	return &Client{
		tr:      protocol.NewHostTransport(port),
		Timeout: protocol.DefaultTimeout,
	}
}

// Close stops the transport and closes the port
func (c *Client) Close() error {
	return c.tr.Close()
}

func (c *Client) request(cmdID uint16, args func(output protocol.OutputBuffer), respID uint16, n int) ([]uint32, error) {
	payload, err := c.tr.Request(cmdID, args, respID, c.Timeout)
	if err != nil {
		return nil, err
	}
	return decodeFields(payload, n)
}

func decodeFields(payload []byte, n int) ([]uint32, error) {
	vals := make([]uint32, n)
	for i := range vals {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, oops.Wrapf(err, "decoding response field %d of %d", i+1, n)
		}
		vals[i] = v
	}
	return vals, nil
}

func timeReading(vals []uint32) TimeReading {
	return TimeReading{Epoch: core.Epoch(vals[0]), Status: core.Status(vals[1])}
}

// GetTime reads the board clock
func (c *Client) GetTime() (TimeReading, error) {
	vals, err := c.request(protocol.CmdGetTime, nil, protocol.CmdTimeResponse, 2)
	if err != nil {
		return TimeReading{}, oops.Wrapf(err, "get_time")
	}
	return timeReading(vals), nil
}

// SetTime sets the board clock
func (c *Client) SetTime(t core.Epoch) (TimeReading, error) {
	vals, err := c.request(protocol.CmdSetTime, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(t))
	}, protocol.CmdTimeResponse, 2)
	if err != nil {
		return TimeReading{}, oops.Wrapf(err, "set_time %d", t)
	}
	log.WithField("epoch", t).Debug("board clock set")
	return timeReading(vals), nil
}

// Adjust moves the board clock by delta seconds
func (c *Client) Adjust(delta int32) (TimeReading, error) {
	vals, err := c.request(protocol.CmdAdjustTime, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQInt(o, delta)
	}, protocol.CmdTimeResponse, 2)
	if err != nil {
		return TimeReading{}, oops.Wrapf(err, "adjust_time %d", delta)
	}
	return timeReading(vals), nil
}

// Calibration reads the calibrator state
func (c *Client) Calibration() (Calibration, error) {
	vals, err := c.request(protocol.CmdGetCalibration, nil, protocol.CmdCalibrationResponse, 4)
	if err != nil {
		return Calibration{}, oops.Wrapf(err, "get_calibration")
	}
	return Calibration{
		MicrosPerInterrupt: vals[0],
		Interrupts:         vals[1],
		PendingMicros:      vals[2],
		State:              core.CalibrationState(vals[3]),
	}, nil
}

// Tune runs one calibration step on the board
func (c *Client) Tune() (TuneReply, error) {
	vals, err := c.request(protocol.CmdTune, nil, protocol.CmdTuneResponse, 2)
	if err != nil {
		return TuneReply{}, oops.Wrapf(err, "tune")
	}
	return TuneReply{Result: core.TuneResult(vals[0]), MicrosPerInterrupt: vals[1]}, nil
}

// Events reads the board's event ring, oldest first
func (c *Client) Events() ([]core.Event, error) {
	payloads, err := c.tr.Collect(protocol.CmdGetEvents, protocol.CmdEventResponse, 200*time.Millisecond)
	if err != nil {
		return nil, oops.Wrapf(err, "get_events")
	}

	events := make([]core.Event, 0, len(payloads))
	for _, p := range payloads {
		vals, err := decodeFields(p, 3)
		if err != nil {
			return events, err
		}
		events = append(events, core.Event{Type: uint8(vals[0]), Epoch: vals[1], Value: vals[2]})
	}
	return events, nil
}

// SyncResult reports one Sync
type SyncResult struct {
	Before    TimeReading
	Reference core.Epoch
	Offset    int64 // board minus reference, seconds, before correction
	Tune      TuneReply
}

// Sync sets the board from a trusted source and then tunes, so the
// correction doubles as a calibration sample
func (c *Client) Sync(src reference.Source) (SyncResult, error) {
	var res SyncResult

	before, err := c.GetTime()
	if err != nil {
		return res, err
	}
	now, err := src.Now()
	if err != nil {
		return res, oops.Wrapf(err, "reading %s", src.Name())
	}
	epoch, err := reference.ToEpoch(now)
	if err != nil {
		return res, err
	}

	if _, err := c.SetTime(epoch); err != nil {
		return res, err
	}
	tune, err := c.Tune()
	if err != nil {
		return res, err
	}

	res = SyncResult{
		Before:    before,
		Reference: epoch,
		Offset:    int64(before.Epoch) - int64(epoch),
		Tune:      tune,
	}
	log.WithFields(logger.Fields{
		"source": src.Name(),
		"offset": res.Offset,
		"tune":   tune.Result.String(),
		"us":     tune.MicrosPerInterrupt,
	}).Info("board synchronised")
	return res, nil
}
