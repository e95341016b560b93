// Package locator implements the broadcast-only protocol every slave
// answers before it has a bus address (spec §4.7): discovery, address
// assignment, neighbor-link control, and the bus-assertion primitive the
// binary UUID searcher (searcher.go) builds on.
package locator

import (
	"context"
	"encoding/binary"

	"busmaster/internal/busio"
	"busmaster/internal/frame"
)

const familyByte = 0x00

// broadcastAddress is the bus address every Locator call targets.
const broadcastAddress = 0x00

const (
	subAddress    = 0x00
	subEnable     = 0x01
	subDisable    = 0x02
	subResetAll   = 0x03
	subAssert     = 0x04
	subAssertOnly = 0x05
	subSleep      = 0x06
)

// addrTailReadOrSet is the tail byte shared by "read currently assigned
// address" and "set bus address" — they're distinguished by request
// length alone (spec §4.7).
const (
	addrTailReadOrSet = 0x00
	addrTailReset     = 0x01
)

// Locator issues broadcast-address requests over a shared Transport.
// Every call targets address 0x00, so unlike device.Device it needs no
// per-instance address state.
type Locator struct {
	Transport *busio.Transport
}

// New builds a Locator over transport.
func New(transport *busio.Transport) *Locator {
	return &Locator{Transport: transport}
}

// transceive is for broadcasts that genuinely expect a response (WhoIsThere,
// ReadBusAddress, SetBusAddress, and the bus-assertion request, whose silence
// is itself a meaningful signal — see TransceiveBroadcast/NoAssertionDetected).
func (l *Locator) transceive(ctx context.Context, payload []byte, expectedLen int) ([]byte, busio.ErrorKind) {
	return l.Transport.TransceiveBroadcast(ctx, payload, expectedLen)
}

// transmit is for broadcasts that never solicit a reply (§4.5 "transmit"):
// routing these through transceive would read a frame that no silent slave
// ever sends and misclassify the expected silence as NoAssertionDetected.
func (l *Locator) transmit(ctx context.Context, payload []byte) busio.ErrorKind {
	return l.Transport.Transmit(ctx, broadcastAddress, payload)
}

// WhoIsThere addresses the unique unaddressed device on the bus and
// returns its UUID.
func (l *Locator) WhoIsThere(ctx context.Context) (uint32, busio.ErrorKind) {
	raw, kind := l.transceive(ctx, []byte{familyByte, subAddress}, 4)
	if kind != busio.Success {
		return 0, kind
	}
	return binary.LittleEndian.Uint32(raw), busio.Success
}

// PingByUUID pings a specific device by UUID with no reply data expected.
func (l *Locator) PingByUUID(ctx context.Context, uuid uint32) busio.ErrorKind {
	req := make([]byte, 2+4)
	req[0], req[1] = familyByte, subAddress
	binary.LittleEndian.PutUint32(req[2:6], uuid)
	return l.transmit(ctx, req)
}

// ReadBusAddress returns the currently assigned address of the device
// identified by uuid (0 if none).
func (l *Locator) ReadBusAddress(ctx context.Context, uuid uint32) (byte, busio.ErrorKind) {
	req := make([]byte, 2+4+1)
	req[0], req[1] = familyByte, subAddress
	binary.LittleEndian.PutUint32(req[2:6], uuid)
	req[6] = addrTailReadOrSet
	raw, kind := l.transceive(ctx, req, 1)
	if kind != busio.Success {
		return 0, kind
	}
	return raw[0], busio.Success
}

// SetBusAddress assigns addr to the device identified by uuid.
func (l *Locator) SetBusAddress(ctx context.Context, uuid uint32, addr byte) busio.ErrorKind {
	req := make([]byte, 2+4+1+1)
	req[0], req[1] = familyByte, subAddress
	binary.LittleEndian.PutUint32(req[2:6], uuid)
	req[6] = addrTailReadOrSet
	req[7] = addr
	raw, kind := l.transceive(ctx, req, 1)
	if kind != busio.Success {
		return kind
	}
	if raw[0] != 1 {
		return busio.DeviceRejectedBusAddress
	}
	return busio.Success
}

// ResetBusAddress clears the address of the device identified by uuid.
func (l *Locator) ResetBusAddress(ctx context.Context, uuid uint32) busio.ErrorKind {
	req := make([]byte, 2+4+1)
	req[0], req[1] = familyByte, subAddress
	binary.LittleEndian.PutUint32(req[2:6], uuid)
	req[6] = addrTailReset
	return l.transmit(ctx, req)
}

// EnableBusNeighbours re-links every device's neighbor pass-through.
func (l *Locator) EnableBusNeighbours(ctx context.Context) busio.ErrorKind {
	return l.transmit(ctx, []byte{familyByte, subEnable})
}

// DisableBusNeighbours isolates every device from its physical neighbors,
// so only one unaddressed device answers a broadcast ping at a time.
func (l *Locator) DisableBusNeighbours(ctx context.Context) busio.ErrorKind {
	return l.transmit(ctx, []byte{familyByte, subDisable})
}

// ResetAllBusAddresses clears every device's assigned address.
func (l *Locator) ResetAllBusAddresses(ctx context.Context) busio.ErrorKind {
	return l.transmit(ctx, []byte{familyByte, subResetAll})
}

// Sleep broadcasts the sleep command.
func (l *Locator) Sleep(ctx context.Context) busio.ErrorKind {
	return l.transmit(ctx, []byte{familyByte, subSleep})
}

// SendBroadcastPing is the sequential-enumeration primitive (spec §4.9):
// with neighbors disabled, exactly one unaddressed device is expected to
// answer with its UUID, same wire shape as WhoIsThere.
func (l *Locator) SendBroadcastPing(ctx context.Context) (uint32, busio.ErrorKind) {
	return l.WhoIsThere(ctx)
}

// encodeSearchAddress serializes prefix in little-endian using the
// minimum number of bytes that fit it (spec §4.7): 0 bytes if zero, else
// 1-4 bytes depending on magnitude.
func encodeSearchAddress(prefix uint32) []byte {
	switch {
	case prefix == 0:
		return nil
	case prefix < 1<<8:
		return []byte{byte(prefix)}
	case prefix < 1<<16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(prefix))
		return b
	case prefix < 1<<24:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, prefix)
		return b[:3]
	default:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, prefix)
		return b
	}
}

// clampMaskLen clamps level to [0, 32] per spec §4.7.
func clampMaskLen(level int) int {
	if level < 0 {
		return 0
	}
	if level > 32 {
		return 32
	}
	return level
}

// RequestAssertion broadcasts a bus-assertion request at the given
// (prefix, level): every slave computes
// (uuid & ((1<<level)-1)) == prefix and, on a match, asserts the bus — a
// physical collision the transport surfaces as anything other than
// NoAnswer. onlyUnaddressed restricts the assertion to devices that have
// not yet been given a bus address (sub_op 0x05 instead of 0x04).
func (l *Locator) RequestAssertion(ctx context.Context, prefix uint32, level int, onlyUnaddressed bool) busio.ErrorKind {
	level = clampMaskLen(level)
	searchAddr := encodeSearchAddress(prefix)

	sub := byte(subAssert)
	if onlyUnaddressed {
		sub = subAssertOnly
	}

	req := make([]byte, 2+1+len(searchAddr))
	req[0], req[1] = familyByte, sub
	req[2] = byte(level)
	copy(req[3:], searchAddr)

	_, kind := l.transceive(ctx, req, 0)
	return kind
}

// ScanBusAddresses sequentially pings every address in [first, last] and
// returns the ones that answered. If stopOnMissing is true, scanning
// halts at the first non-responder so the result preserves bus order
// exactly (spec §4.7). first and last must fall within the valid unicast
// scan range [1, 127]; address 0 is reserved for broadcasts (spec §8).
func (l *Locator) ScanBusAddresses(ctx context.Context, first, last byte, stopOnMissing bool) ([]byte, busio.ErrorKind) {
	if first < frame.MinAddress || last > frame.MaxAddress || first > last {
		return nil, busio.InvalidArgument
	}

	var found []byte
	for addr := int(first); addr <= int(last); addr++ {
		_, kind := l.Transport.Transceive(ctx, byte(addr), nil, 0)
		if kind == busio.Success {
			found = append(found, byte(addr))
			continue
		}
		if stopOnMissing {
			break
		}
	}
	return found, busio.Success
}
