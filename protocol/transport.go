package protocol

// CommandHandler handles one decoded command; data starts at its arguments
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link. It validates incoming frames,
// dispatches their commands in sequence order and answers every frame with an
// ACK carrying the next expected sequence. It runs in the foreground loop only.
type Transport struct {
	deframer     Deframer
	nextSequence uint8 // expected from the host; also stamped on responses

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()

	framesDropped uint32
}

// NewTransport creates a transport writing ACKs and responses to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.deframer.RequireDest = true
	t.deframer.OnResync = t.encodeAck
	return t
}

// Receive processes every complete frame in input and pops what it consumed
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for {
		msg, rest, ok := t.deframer.Next(data)
		data = rest
		if !ok {
			break
		}

		// A host that restarts begins again at 0x10
		if msg.Sequence == MessageDest && t.nextSequence != MessageDest {
			t.nextSequence = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if msg.Sequence == t.nextSequence {
			t.nextSequence = NextSequence(msg.Sequence)
			if err := t.parseFrame(msg.Payload); err != nil {
				t.framesDropped++
			}
		}
		// Sent for out-of-order frames too, where it acts as a NAK
		t.encodeAck()
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches each command packed into one frame
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.deframer.lostSync = true
			err = ErrHandlerPanic
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.deframer.lostSync = true
			return err
		}
		if t.handler == nil {
			continue
		}
		// Handler errors stop this frame but do not cost sync
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// encodeAck writes an empty frame and flushes it straight away
func (t *Transport) encodeAck() {
	t.reserve()
	EncodeFrame(t.output, t.nextSequence, nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// reserve flushes pending output when another frame might not fit
func (t *Transport) reserve() {
	if f, ok := t.output.(interface{ Full() bool }); ok && f.Full() && t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand sends one response. Responses share the current sequence.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.reserve()
	ok := EncodeFrame(t.output, t.nextSequence, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	if !ok {
		t.framesDropped++
	}
}

// Reset returns to the power-on state, e.g. after a USB reconnect
func (t *Transport) Reset() {
	t.deframer.Reset()
	t.nextSequence = MessageDest
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback run when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback that pushes pending output to the wire
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// FramesDropped counts frames whose commands failed or did not fit
func (t *Transport) FramesDropped() uint32 {
	return t.framesDropped
}

// Synchronized reports whether the receive side is aligned on frames
func (t *Transport) Synchronized() bool {
	return t.deframer.Synchronized()
}
