package opc

// Protocol constants.
const (
	// DefaultPort is the TCP port OPC servers conventionally listen on.
	// Published for transport collaborators; the codec itself never
	// opens a socket.
	DefaultPort = 7890

	// MaxPayloadLength is the largest payload one frame can carry,
	// bounded by the 16-bit length field in the frame header.
	MaxPayloadLength = 0xFFFF

	// BroadcastChannel addresses every strand at once.
	BroadcastChannel = 0

	// headerLength covers channel, opcode and the big-endian u16
	// payload length.
	headerLength = 4

	opSetPixelColors  = 0x00
	opSystemExclusive = 0xFF
)

// Pixel is one RGB triple in red, green, blue order.
type Pixel [3]byte

// Command is the payload of a Message. The protocol defines exactly
// two shapes, SetPixelColors and SystemExclusive; frames carrying any
// other opcode fail decoding with an UnknownCommandError.
type Command interface {
	// Length returns the serialized payload size in bytes.
	Length() int

	opcode() byte
}

// SetPixelColors overwrites the first len(Pixels) pixels of the target
// strand, starting at index 0. Pixels beyond that on the strand keep
// their previous color, and a strand shorter than len(Pixels) discards
// the excess data.
type SetPixelColors struct {
	Pixels []Pixel
}

func (c SetPixelColors) Length() int { return len(c.Pixels) * 3 }

func (SetPixelColors) opcode() byte { return opSetPixelColors }

// SystemExclusive carries a vendor-defined payload. The two-byte ID
// names the system the payload belongs to; the codec treats Data as
// opaque bytes.
type SystemExclusive struct {
	ID   [2]byte
	Data []byte
}

func (c SystemExclusive) Length() int { return len(c.Data) + 2 }

func (SystemExclusive) opcode() byte { return opSystemExclusive }

// Message is one OPC frame in memory: a channel and exactly one
// command. Messages are ephemeral values, built by a caller or by the
// Decoder and consumed immediately; they are never mutated in place.
type Message struct {
	// Channel addresses one of up to 255 pixel strands.
	// Channel 0 is a broadcast delivered to every strand.
	Channel byte
	Command Command
}

// NewMessage creates a Message for the given channel and command.
// No validation happens here; callers check IsValid before sending.
func NewMessage(channel byte, command Command) Message {
	return Message{Channel: channel, Command: command}
}

// Length returns the serialized payload size in bytes, exactly the
// value the encoder writes into the frame's length field.
func (m Message) Length() int {
	if m.Command == nil {
		return 0
	}
	return m.Command.Length()
}

// IsValid reports whether the message fits in a single frame, i.e. its
// payload does not exceed the 16-bit length field.
func (m Message) IsValid() bool {
	return m.Command != nil && m.Length() <= MaxPayloadLength
}

// IsBroadcast reports whether the message addresses every strand.
func (m Message) IsBroadcast() bool {
	return m.Channel == BroadcastChannel
}
