package protocol

import "bytes"

// Deframer splits a byte stream into checked frames. After any framing error
// it drops input up to and including the next sync byte.
type Deframer struct {
	lostSync bool

	// RequireDest rejects frames whose sequence byte lacks the 0x10 marker
	RequireDest bool

	// OnResync is called each time sync is regained
	OnResync func()
}

// Synchronized reports whether the deframer is aligned on frame boundaries
func (d *Deframer) Synchronized() bool {
	return !d.lostSync
}

// Reset forgets any framing error
func (d *Deframer) Reset() {
	d.lostSync = false
}

// Next returns the next complete frame in data and the input left after it.
// When ok is false, rest holds a partial frame to retry once more bytes arrive.
// The returned payload aliases data.
func (d *Deframer) Next(data []byte) (msg Message, rest []byte, ok bool) {
	for len(data) > 0 {
		if d.lostSync {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				return Message{}, nil, false
			}
			data = data[i+1:]
			d.lostSync = false
			if d.OnResync != nil {
				d.OnResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.lostSync = true
			continue
		}
		seq := data[MessagePositionSeq]
		if d.RequireDest && seq&^MessageSeqMask != MessageDest {
			d.lostSync = true
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.lostSync = true
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.lostSync = true
			continue
		}

		msg = Message{
			Length:   uint8(msgLen),
			Sequence: seq,
			Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
			CRC:      frameCRC,
		}
		return msg, data[msgLen:], true
	}
	return Message{}, data, false
}

// EncodeFrame writes one complete frame with the given sequence into output.
// If the payload does not fit in one frame nothing is written and it returns false.
func EncodeFrame(output OutputBuffer, seq uint8, payload func(output OutputBuffer)) bool {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if payload != nil {
		payload(output)
	}

	msgLen := len(output.DataSince(cursor)) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		output.Truncate(cursor)
		return false
	}
	output.Update(cursor+MessagePositionLen, uint8(msgLen))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return true
}
