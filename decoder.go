package opc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Device consumes decoded messages. It is the receiving end of the
// codec: the Decoder calls ReadMessage once per successfully decoded
// frame, in wire order.
type Device interface {
	// ReadMessage handles one decoded message. Payload slices inside
	// msg alias the decoder's receive buffer and are only valid until
	// ReadMessage returns; copy out anything that must be retained.
	ReadMessage(msg Message) error
	// Channel reports which strand this device represents, so an
	// external dispatcher can route messages by channel.
	Channel() byte
}

// ErrIncompleteFrame reports that the buffered bytes do not yet form a
// complete frame. It is a retry signal, not a failure: nothing has
// been consumed, feed more bytes and try again.
var ErrIncompleteFrame = errors.New("incomplete frame")

// UnknownCommandError reports a complete frame whose opcode is neither
// SetPixelColors nor SystemExclusive. The length field is still
// trusted, so the caller can resynchronize the stream with SkipFrame
// instead of abandoning it.
type UnknownCommandError struct {
	Opcode byte
	// PayloadLength is the payload size announced by the frame header.
	PayloadLength int
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command 0x%02X (payload %d bytes)", e.Opcode, e.PayloadLength)
}

// MalformedFrameError reports a complete frame whose payload violates
// the minimum size its opcode requires. The announced span is intact,
// so SkipFrame can still resynchronize past it.
type MalformedFrameError struct {
	Opcode        byte
	PayloadLength int
	Reason        string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame, command 0x%02X: %s", e.Opcode, e.Reason)
}

// defaultReadChunkSize is how much Receive asks the source for per
// read call.
const defaultReadChunkSize = 4096

// Decoder reassembles OPC frames from a byte stream that does not
// align with frame boundaries. Bytes accumulate in an internal receive
// buffer, either pushed in with Feed or pulled from an io.Reader by
// Receive; Next parses at most one frame per call and delivers it to a
// Device.
//
// Memory use is bounded: the buffer never needs to hold more than one
// maximum-size frame plus one read chunk. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	r     io.Reader
	buf   []byte
	chunk []byte

	// skip counts bytes of a discarded frame that have not arrived
	// yet; Feed drops them before buffering.
	skip int
}

// NewDecoder returns a Decoder filling its buffer from r. r may be nil
// when the caller pushes bytes in with Feed and drives decoding with
// Next directly.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Feed appends raw stream bytes to the receive buffer. The bytes are
// copied; the caller may reuse p.
func (d *Decoder) Feed(p []byte) {
	if d.skip > 0 {
		n := d.skip
		if n > len(p) {
			n = len(p)
		}
		d.skip -= n
		p = p[n:]
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of unconsumed bytes in the receive
// buffer.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next decodes at most one frame from the buffered bytes.
//
// Outcomes:
//   - nil: one frame was decoded, delivered to the device, and its
//     4+length bytes consumed.
//   - ErrIncompleteFrame: fewer bytes are buffered than the next frame
//     needs; nothing was consumed.
//   - *UnknownCommandError or *MalformedFrameError: the frame at the
//     head of the buffer is undecodable; nothing was consumed. Call
//     SkipFrame to drop its announced span and resynchronize, or stop
//     reading the stream.
//   - anything else: returned unchanged from device.ReadMessage; the
//     frame was delivered and consumed.
func (d *Decoder) Next(device Device) error {
	msg, total, err := d.parse()
	if err != nil {
		return err
	}

	err = device.ReadMessage(msg)
	// Payload views handed to the device alias d.buf, so the buffer
	// must not be compacted before ReadMessage returns.
	d.consume(total)
	return err
}

// SkipFrame discards the frame at the head of the buffer using its
// announced length, resynchronizing the stream after an
// UnknownCommandError or MalformedFrameError. If part of the frame has
// not arrived yet, the remainder is dropped as it is fed in. Returns
// ErrIncompleteFrame when not even the 4-byte header is buffered.
func (d *Decoder) SkipFrame() error {
	if len(d.buf) < headerLength {
		return ErrIncompleteFrame
	}

	total := headerLength + int(binary.BigEndian.Uint16(d.buf[2:headerLength]))
	if total > len(d.buf) {
		d.skip = total - len(d.buf)
		d.buf = d.buf[:0]
		return nil
	}

	d.consume(total)
	return nil
}

// Receive blocks until one complete frame has been decoded and
// delivered to the device, filling the receive buffer from the
// underlying reader as needed. Undecodable frames are returned exactly
// as Next returns them, without consuming the offending bytes; the
// caller decides between SkipFrame-and-continue and abandoning the
// stream.
//
// A clean end of stream surfaces as io.EOF; an end of stream in the
// middle of a frame as io.ErrUnexpectedEOF. Other source failures are
// returned wrapped.
func (d *Decoder) Receive(device Device) error {
	if d.r == nil {
		return errors.New("decoder has no reader")
	}

	for {
		err := d.Next(device)
		if err != ErrIncompleteFrame {
			return err
		}

		if err := d.fill(); err != nil {
			if err == io.EOF {
				if len(d.buf) > 0 || d.skip > 0 {
					return io.ErrUnexpectedEOF
				}
				return io.EOF
			}
			return errors.Wrap(err, "read")
		}
	}
}

// fill reads one chunk from the source into the receive buffer.
func (d *Decoder) fill() error {
	if d.chunk == nil {
		d.chunk = make([]byte, defaultReadChunkSize)
	}

	n, err := d.r.Read(d.chunk)
	if n > 0 {
		d.Feed(d.chunk[:n])
		// Let the buffered bytes be decoded first; a sticky error
		// resurfaces on the next read.
		return nil
	}
	return err
}

// parse inspects the buffered bytes for one complete frame. It returns
// the decoded message and the frame's total wire size, or an error and
// zero consumption. Payload slices in the returned message alias d.buf.
func (d *Decoder) parse() (Message, int, error) {
	if len(d.buf) < headerLength {
		return Message{}, 0, ErrIncompleteFrame
	}

	channel, opcode := d.buf[0], d.buf[1]
	length := int(binary.BigEndian.Uint16(d.buf[2:headerLength]))

	// The length field is authoritative for framing even when the
	// opcode is unrecognized.
	total := headerLength + length
	if len(d.buf) < total {
		return Message{}, 0, ErrIncompleteFrame
	}

	payload := d.buf[headerLength:total]
	switch opcode {
	case opSetPixelColors:
		// Trailing bytes that do not form a whole triple are ignored.
		pixels := make([]Pixel, length/3)
		for i := range pixels {
			copy(pixels[i][:], payload[i*3:])
		}
		return Message{Channel: channel, Command: SetPixelColors{Pixels: pixels}}, total, nil

	case opSystemExclusive:
		if length < 2 {
			return Message{}, 0, &MalformedFrameError{
				Opcode:        opcode,
				PayloadLength: length,
				Reason:        "payload shorter than the 2-byte system id",
			}
		}
		var id [2]byte
		copy(id[:], payload)
		return Message{Channel: channel, Command: SystemExclusive{ID: id, Data: payload[2:]}}, total, nil

	default:
		return Message{}, 0, &UnknownCommandError{Opcode: opcode, PayloadLength: length}
	}
}

// consume drops n bytes from the front of the buffer. Any payload
// views handed out by parse are invalid after this point.
func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
