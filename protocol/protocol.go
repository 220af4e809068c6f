// Package protocol implements the framed serial link between the clock
// firmware and a host: VLQ-encoded commands in CRC16-checked frames.
package protocol

// Version of the wire protocol and command table
const Version = "1.0.0"

// Frame layout: [len][seq][payload...][crc hi][crc lo][sync]
const (
	MessageMax         = 256 // output scratch size
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// Command and response IDs. Responses are sent by the device only.
const (
	CmdTimeResponse uint16 = iota
	CmdGetTime
	CmdSetTime
	CmdAdjustTime
	CmdGetCalibration
	CmdCalibrationResponse
	CmdTune
	CmdTuneResponse
	CmdGetEvents
	CmdEventResponse
)

// Message is one checked frame
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // frame data without header and trailer
	CRC      uint16
}

// NextSequence returns the sequence following seq, wrapping within 0x10-0x1F
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
