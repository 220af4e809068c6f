//go:build !tinygo

package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeDevice serves a device Transport on one end of an in-memory pipe
// and returns the other end.
func startFakeDevice(t *testing.T, handler func(tr *Transport, cmdID uint16, data *[]byte) error) net.Conn {
	t.Helper()
	hostEnd, deviceEnd := net.Pipe()

	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(cmdID uint16, data *[]byte) error {
		return handler(tr, cmdID, data)
	})
	flush := func() {
		if len(out.Result()) > 0 {
			_, _ = deviceEnd.Write(out.Result())
			out.Reset()
		}
	}
	tr.SetFlushCallback(flush)

	go func() {
		fifo := NewFifoBuffer(512)
		buf := make([]byte, 128)
		for {
			n, err := deviceEnd.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			tr.Receive(fifo)
			flush()
		}
	}()
	t.Cleanup(func() { _ = deviceEnd.Close() })
	return hostEnd
}

// nextSequence reads the sequence the next command will carry
func nextSequence(host *HostTransport) uint8 {
	host.callMu.Lock()
	defer host.callMu.Unlock()
	return host.currentSeq
}

func echoTimeHandler(tr *Transport, cmdID uint16, data *[]byte) error {
	switch cmdID {
	case CmdGetTime:
		tr.SendCommand(CmdTimeResponse, func(o OutputBuffer) {
			EncodeVLQUint(o, 1720100730)
			EncodeVLQUint(o, 2)
		})
	case CmdSetTime:
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		tr.SendCommand(CmdTimeResponse, func(o OutputBuffer) {
			EncodeVLQUint(o, v)
			EncodeVLQUint(o, 2)
		})
	case CmdGetEvents:
		for i := uint32(0); i < 3; i++ {
			i := i
			tr.SendCommand(CmdEventResponse, func(o OutputBuffer) {
				EncodeVLQUint(o, i)
			})
		}
	}
	return nil
}

func TestHostTransportRequest(t *testing.T) {
	host := NewHostTransport(startFakeDevice(t, echoTimeHandler))
	defer host.Close()

	payload, err := host.Request(CmdGetTime, nil, CmdTimeResponse, time.Second)
	require.NoError(t, err)

	epoch, err := DecodeVLQUint(&payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1720100730), epoch)
	assert.Equal(t, uint8(0x11), nextSequence(host))
}

func TestHostTransportSequenceAdvances(t *testing.T) {
	host := NewHostTransport(startFakeDevice(t, echoTimeHandler))
	defer host.Close()

	// More than one full trip round the sequence space
	for i := uint32(0); i < 20; i++ {
		epoch := 1451606400 + i
		payload, err := host.Request(CmdSetTime, func(o OutputBuffer) {
			EncodeVLQUint(o, epoch)
		}, CmdTimeResponse, time.Second)
		require.NoError(t, err, "request %d", i)

		got, err := DecodeVLQUint(&payload)
		require.NoError(t, err)
		assert.Equal(t, epoch, got)
	}
	assert.Equal(t, uint8(0x14), nextSequence(host))
}

func TestHostTransportCollect(t *testing.T) {
	host := NewHostTransport(startFakeDevice(t, echoTimeHandler))
	defer host.Close()

	payloads, err := host.Collect(CmdGetEvents, CmdEventResponse, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, payloads, 3)

	for i, p := range payloads {
		v, err := DecodeVLQUint(&p)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), v)
	}
}

func TestHostTransportRequestSkipsOtherResponses(t *testing.T) {
	host := NewHostTransport(startFakeDevice(t, func(tr *Transport, cmdID uint16, data *[]byte) error {
		tr.SendCommand(CmdEventResponse, func(o OutputBuffer) {
			EncodeVLQUint(o, 7)
		})
		return echoTimeHandler(tr, cmdID, data)
	}))
	defer host.Close()

	payload, err := host.Request(CmdGetTime, nil, CmdTimeResponse, time.Second)
	require.NoError(t, err)

	epoch, err := DecodeVLQUint(&payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1720100730), epoch)
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostEnd, deviceEnd := net.Pipe()
	go func() {
		// Swallow everything, never answer
		buf := make([]byte, 64)
		for {
			if _, err := deviceEnd.Read(buf); err != nil {
				return
			}
		}
	}()
	defer deviceEnd.Close()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	_, err := host.Request(CmdGetTime, nil, CmdTimeResponse, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACK timeout")
	assert.Equal(t, uint8(MessageDest), nextSequence(host))
}

func TestHostTransportOversizedCommand(t *testing.T) {
	host := NewHostTransport(startFakeDevice(t, echoTimeHandler))
	defer host.Close()

	_, err := host.Request(CmdSetTime, func(o OutputBuffer) {
		o.Output(make([]byte, MessageLengthMax))
	}, CmdTimeResponse, time.Second)
	require.Error(t, err)
	assert.Equal(t, uint8(MessageDest), nextSequence(host))
}

func TestHostTransportClose(t *testing.T) {
	host := NewHostTransport(startFakeDevice(t, echoTimeHandler))
	require.NoError(t, host.Close())

	_, err := host.ReceiveResponse(time.Second)
	assert.ErrorIs(t, err, ErrTransportClosed)
}
