// Package frame implements the wire framing layer: address byte, payload,
// trailing CRC-8.
package frame

import (
	"errors"

	"busmaster/internal/crc8"
)

// BroadcastAddress is the reserved address used for broadcast frames.
const BroadcastAddress = 0x00

// MinAddress and MaxAddress bound the valid unicast scan range.
const (
	MinAddress = 1
	MaxAddress = 127
)

// ErrMalformed is returned by Decode when a frame is shorter than the
// minimum possible length (address + CRC).
var ErrMalformed = errors.New("frame: malformed, length < 2")

// ErrChecksum is returned by Decode when the trailing CRC byte does not
// match the recomputed CRC-8 of address+payload.
var ErrChecksum = errors.New("frame: checksum mismatch")

// Encode builds the on-wire frame: address, payload, CRC-8 over both.
func Encode(address byte, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload)+1)
	out = append(out, address)
	out = append(out, payload...)
	out = append(out, crc8.Compute(out))
	return out
}

// Decode splits a received frame into address and payload, verifying the
// trailing CRC-8. Returns ErrMalformed for frames shorter than 2 bytes and
// ErrChecksum when the CRC does not match.
func Decode(f []byte) (address byte, payload []byte, err error) {
	if len(f) < 2 {
		return 0, nil, ErrMalformed
	}
	body, want := f[:len(f)-1], f[len(f)-1]
	if !crc8.Verify(body, want) {
		return 0, nil, ErrChecksum
	}
	return body[0], body[1:], nil
}
