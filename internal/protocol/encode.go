package protocol

import "encoding/binary"

// Encode serializes msg into a single datagram using the wire format.
func Encode(msg *Message, limits Limits) ([]byte, error) {
	if msg == nil {
		return nil, ErrEmptyMessage
	}
	if !msg.Type.Valid() {
		return nil, ErrUnknownType
	}
	if len(msg.Payload) > int(^uint16(0)) {
		return nil, ErrPayloadTooLarge
	}
	if len(msg.Payload) > limits.maxPayload() {
		return nil, ErrPayloadTooLarge
	}
	if (msg.Type == TypeInit || msg.Type == TypeInitAck) && len(msg.Payload) > 0 {
		return nil, ErrPayloadForbidden
	}

	buf := make([]byte, HeaderSize+len(msg.Payload))
	buf[0] = byte(msg.Type)
	binary.BigEndian.PutUint32(buf[1:5], msg.Seq)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(msg.Payload)))
	copy(buf[HeaderSize:], msg.Payload)
	return buf, nil
}
