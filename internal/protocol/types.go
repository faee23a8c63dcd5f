package protocol

// MessageType tags one datagram with its protocol role.
type MessageType uint8

const (
	TypeInit    MessageType = 1
	TypeInitAck MessageType = 2
	TypeData    MessageType = 3
	TypeDataAck MessageType = 4
	TypeError   MessageType = 5
)

// Valid reports whether t is a recognized wire tag.
func (t MessageType) Valid() bool {
	return t >= TypeInit && t <= TypeError
}

func (t MessageType) String() string {
	switch t {
	case TypeInit:
		return "init"
	case TypeInitAck:
		return "init_ack"
	case TypeData:
		return "data"
	case TypeDataAck:
		return "data_ack"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// HeaderSize is the fixed header length: type u8, sequence u32, payload length u16.
	HeaderSize = 7
	// MaxDatagramBytes caps one encoded message including its header.
	MaxDatagramBytes = 1200
)

// Message is one wire datagram. Immutable once constructed.
type Message struct {
	Type    MessageType
	Seq     uint32
	Payload []byte
}

// Limits bounds decode/encode allocation from untrusted datagrams.
type Limits struct {
	MaxPayloadBytes int
}

// DefaultLimits returns the contract default payload bound.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: MaxDatagramBytes - HeaderSize}
}

func (l Limits) maxPayload() int {
	if l.MaxPayloadBytes <= 0 {
		return MaxDatagramBytes - HeaderSize
	}
	return l.MaxPayloadBytes
}
