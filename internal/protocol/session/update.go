package session

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Update is the position payload carried by data packets.
type Update struct {
	Tick    uint32
	X       float32
	Y       float32
	Heading uint16
}

// UpdateWireSize is the fixed encoded length of an Update.
const UpdateWireSize = 14

// EncodeUpdate packs an update into its fixed big-endian layout.
func EncodeUpdate(u Update) []byte {
	out := make([]byte, UpdateWireSize)
	binary.BigEndian.PutUint32(out[0:4], u.Tick)
	binary.BigEndian.PutUint32(out[4:8], math.Float32bits(u.X))
	binary.BigEndian.PutUint32(out[8:12], math.Float32bits(u.Y))
	binary.BigEndian.PutUint16(out[12:14], u.Heading)
	return out
}

// DecodeUpdate unpacks a fixed-layout update payload.
func DecodeUpdate(b []byte) (Update, error) {
	if len(b) != UpdateWireSize {
		return Update{}, fmt.Errorf("session: invalid update length: %d", len(b))
	}
	return Update{
		Tick:    binary.BigEndian.Uint32(b[0:4]),
		X:       math.Float32frombits(binary.BigEndian.Uint32(b[4:8])),
		Y:       math.Float32frombits(binary.BigEndian.Uint32(b[8:12])),
		Heading: binary.BigEndian.Uint16(b[12:14]),
	}, nil
}
