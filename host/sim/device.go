// Package sim runs the clock firmware logic on the host: a serial device
// served over any byte stream, and an offline drift simulation.
package sim

import (
	"io"
	"net"
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"wdtclock/core"
	"wdtclock/protocol"
)

var log = logger.GetGoI2PLogger()

// Device is a clock board in software. Commands are handled on the Serve
// goroutine; Tick may be called from any goroutine, like the timer interrupt.
type Device struct {
	system    *core.System
	store     *core.MemoryStore
	registry  *core.CommandRegistry
	transport *protocol.Transport
	out       *protocol.ScratchOutput

	// foreground serialises everything the firmware main loop would do
	foreground sync.Mutex
	conn       io.Writer
	writeErr   error
}

// NewDevice boots a device with a blank store
func NewDevice(cfg core.Config) *Device {
	store := core.NewMemoryStore(core.SnapshotSize)
	system, err := core.Boot(store, cfg)
	if err != nil {
		// A fresh memory store always reads; keep going on defaults regardless
		log.WithError(err).Warn("simulated device booted on defaults")
	}

	d := &Device{
		system:   system,
		store:    store,
		registry: core.NewCommandRegistry(),
		out:      protocol.NewScratchOutput(),
	}
	d.transport = protocol.NewTransport(d.out, d.registry.Dispatch)
	d.transport.SetFlushCallback(d.flush)
	core.RegisterClockCommands(d.registry, system.Clock, system.Calibrator, d.transport.SendCommand)
	return d
}

// Tick fires n timer interrupts
func (d *Device) Tick(n int) {
	ticks := d.system.Ticks
	for i := 0; i < n; i++ {
		ticks.OnTick()
	}
}

// Now reads the device clock as the main loop would
func (d *Device) Now() core.Epoch {
	d.foreground.Lock()
	defer d.foreground.Unlock()
	return d.system.Clock.Now()
}

// Snapshot returns the bytes the device has persisted
func (d *Device) Snapshot() []byte {
	d.foreground.Lock()
	defer d.foreground.Unlock()
	return append([]byte(nil), d.store.Bytes()...)
}

// Serve handles commands from conn until it fails or is closed
func (d *Device) Serve(conn io.ReadWriter) error {
	d.foreground.Lock()
	d.conn = conn
	d.foreground.Unlock()

	fifo := protocol.NewFifoBuffer(512)
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			fifo.Write(buf[:n])

			d.foreground.Lock()
			d.transport.Receive(fifo)
			d.flush()
			werr := d.writeErr
			d.foreground.Unlock()

			if werr != nil {
				return oops.Wrapf(werr, "simulated device write")
			}
		}
		if err != nil {
			if err == io.EOF || err == io.ErrClosedPipe {
				return nil
			}
			return oops.Wrapf(err, "simulated device read")
		}
	}
}

// Pipe serves the device on one end of an in-memory connection and
// returns the other end for a host to use
func (d *Device) Pipe() net.Conn {
	host, device := net.Pipe()
	go func() {
		if err := d.Serve(device); err != nil {
			log.WithError(err).Debug("simulated device stopped")
		}
		_ = device.Close()
	}()
	return host
}

// flush runs with foreground held
func (d *Device) flush() {
	data := d.out.Result()
	if len(data) == 0 || d.conn == nil {
		return
	}
	if _, err := d.conn.Write(data); err != nil && d.writeErr == nil {
		d.writeErr = err
	}
	d.out.Reset()
}
