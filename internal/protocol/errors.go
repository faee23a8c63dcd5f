package protocol

import "errors"

var (
	ErrEmptyMessage     = errors.New("protocol: empty message")
	ErrUnknownType      = errors.New("protocol: unknown message type")
	ErrTruncated        = errors.New("protocol: truncated datagram")
	ErrLengthMismatch   = errors.New("protocol: payload length mismatch")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
	ErrPayloadForbidden = errors.New("protocol: handshake payload forbidden")
)
