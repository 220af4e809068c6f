//go:build !tinygo

package protocol

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/samber/oops"
)

// DefaultTimeout bounds the wait for an ACK or a response
const DefaultTimeout = 2 * time.Second

// ErrTransportClosed is returned by calls made after or during Close
var ErrTransportClosed = errors.New("transport closed")

// HostTransport is the host end of the link: it sends sequenced command
// frames, waits for the device ACK and collects responses.
type HostTransport struct {
	port io.ReadWriteCloser

	// callMu serialises whole exchanges so sequence and ACK stay paired
	callMu     sync.Mutex
	currentSeq uint8

	inputBuffer *FifoBuffer
	deframer    Deframer

	ackChan      chan Message
	responseChan chan Message

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts reading from port in the background
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(1024),
		ackChan:      make(chan Message, 4),
		responseChan: make(chan Message, 32),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	go t.readLoop()
	return t
}

// Request sends a command and returns the payload, past the ID, of the
// first response carrying respID. Other responses are dropped.
func (t *HostTransport) Request(cmdID uint16, args func(output OutputBuffer), respID uint16, timeout time.Duration) ([]byte, error) {
	t.callMu.Lock()
	defer t.callMu.Unlock()

	t.drainResponses()
	if err := t.send(cmdID, args, timeout); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		msg, err := t.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, oops.Wrapf(err, "command %d: waiting for response %d", cmdID, respID)
		}
		payload := msg.Payload
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		if uint16(id) == respID {
			return payload, nil
		}
	}
}

// Collect sends a command and gathers responses carrying respID until none
// arrives within quiet
func (t *HostTransport) Collect(cmdID uint16, respID uint16, quiet time.Duration) ([][]byte, error) {
	t.callMu.Lock()
	defer t.callMu.Unlock()

	t.drainResponses()
	if err := t.send(cmdID, nil, DefaultTimeout); err != nil {
		return nil, err
	}

	var out [][]byte
	for {
		msg, err := t.ReceiveResponse(quiet)
		if err != nil {
			if errors.Is(err, ErrTransportClosed) {
				return out, err
			}
			return out, nil
		}
		payload := msg.Payload
		id, err := DecodeVLQUint(&payload)
		if err == nil && uint16(id) == respID {
			out = append(out, payload)
		}
	}
}

func (t *HostTransport) send(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	msg, err := t.buildCommandMessage(cmdID, args)
	if err != nil {
		return err
	}

	n, err := t.port.Write(msg)
	if err != nil {
		return oops.Wrapf(err, "writing command %d", cmdID)
	}
	if n != len(msg) {
		return oops.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	return t.waitForAck(timeout)
}

// buildCommandMessage frames one command with the current sequence
func (t *HostTransport) buildCommandMessage(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	ok := EncodeFrame(scratch, t.currentSeq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	if !ok {
		return nil, oops.Errorf("command %d does not fit in a %d byte frame", cmdID, MessageLengthMax)
	}

	msg := make([]byte, len(scratch.Result()))
	copy(msg, scratch.Result())
	return msg, nil
}

// waitForAck waits for the ACK naming the sequence after ours, then advances
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	expected := NextSequence(t.currentSeq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != expected {
				// NAK or an ACK left over from a timed-out exchange
				if ack.Sequence == t.currentSeq {
					continue
				}
				return oops.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", expected, ack.Sequence)
			}
			t.currentSeq = expected
			return nil

		case <-timer.C:
			return oops.Errorf("ACK timeout after %v", timeout)

		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse waits up to timeout for the next response frame
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return Message{}, oops.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return Message{}, ErrTransportClosed
	}
}

func (t *HostTransport) drainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processMessages runs on the read goroutine only
func (t *HostTransport) processMessages() {
	data := t.inputBuffer.Data()
	for {
		msg, rest, ok := t.deframer.Next(data)
		data = rest
		if !ok {
			break
		}
		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)
		msg.Payload = payload
		t.dispatchMessage(msg)
	}

	consumed := t.inputBuffer.Available() - len(data)
	if consumed > 0 {
		t.inputBuffer.Pop(consumed)
	}
}

// dispatchMessage routes empty frames to the ACK queue and the rest to responses
func (t *HostTransport) dispatchMessage(msg Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	select {
	case t.responseChan <- msg:
	default:
		// Full: drop the oldest
		select {
		case <-t.responseChan:
		default:
		}
		select {
		case t.responseChan <- msg:
		default:
		}
	}
}

// Close stops the reader and closes the port. Closing the port first
// unblocks a read in progress.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}
