package opc

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Errors returned by Encoder.Send and Conn.Write.
var (
	// ErrNoCommand is returned when a message carries no command.
	ErrNoCommand = errors.New("message has no command")
	// ErrPayloadTooLarge is returned when a message's payload exceeds
	// the 16-bit length field.
	ErrPayloadTooLarge = errors.New("payload exceeds 16-bit length field")
)

// Encoder serializes Messages into OPC wire format and writes them to
// a byte sink. The sink is wrapped in a bufio.Writer sized to one
// maximum frame, so a frame normally reaches the sink in a single
// write on flush.
//
// An Encoder is not safe for concurrent use; callers driving one
// encoder from multiple goroutines must serialize access.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder returns an Encoder writing frames to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriterSize(w, headerLength+MaxPayloadLength)}
}

// Send writes one complete frame to the sink and flushes it:
//
//	[channel][opcode][length u16 big-endian][payload]
//
// Messages whose payload exceeds MaxPayloadLength are rejected with
// ErrPayloadTooLarge before anything is written; the length field
// cannot represent them. After a sink failure the frame may be
// partially written, the encoder gives no atomicity guarantee across
// the writes.
func (e *Encoder) Send(msg Message) error {
	if msg.Command == nil {
		return ErrNoCommand
	}

	length := msg.Length()
	if length > MaxPayloadLength {
		return ErrPayloadTooLarge
	}

	var header [headerLength]byte
	header[0] = msg.Channel
	header[1] = msg.Command.opcode()
	binary.BigEndian.PutUint16(header[2:], uint16(length))

	if _, err := e.w.Write(header[:]); err != nil {
		return errors.Wrap(err, "write header")
	}

	switch cmd := msg.Command.(type) {
	case SetPixelColors:
		for _, pixel := range cmd.Pixels {
			if _, err := e.w.Write(pixel[:]); err != nil {
				return errors.Wrap(err, "write pixel data")
			}
		}
	case SystemExclusive:
		if _, err := e.w.Write(cmd.ID[:]); err != nil {
			return errors.Wrap(err, "write system id")
		}
		if _, err := e.w.Write(cmd.Data); err != nil {
			return errors.Wrap(err, "write system data")
		}
	default:
		return errors.Errorf("unsupported command type %T", msg.Command)
	}

	return errors.Wrap(e.w.Flush(), "flush")
}
