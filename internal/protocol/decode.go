package protocol

import "encoding/binary"

// Decode parses a single datagram into a Message. Decoding is pure: the
// returned payload is a copy, never a view into buf.
func Decode(buf []byte, limits Limits) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}

	t := MessageType(buf[0])
	if !t.Valid() {
		return nil, ErrUnknownType
	}
	seq := binary.BigEndian.Uint32(buf[1:5])
	payloadLen := int(binary.BigEndian.Uint16(buf[5:7]))
	if payloadLen > limits.maxPayload() {
		return nil, ErrPayloadTooLarge
	}

	rest := buf[HeaderSize:]
	if len(rest) < payloadLen {
		return nil, ErrTruncated
	}
	if len(rest) > payloadLen {
		return nil, ErrLengthMismatch
	}

	msg := &Message{Type: t, Seq: seq}
	if payloadLen > 0 {
		payload := make([]byte, payloadLen)
		copy(payload, rest)
		msg.Payload = payload
	}
	return msg, nil
}
