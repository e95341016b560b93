// Package example demonstrates the profile.Extension pattern (spec
// §4.6a): a leaf device profile embeds *device.Core and adds its own
// typed methods on top of the generic device-info protocol. This is a
// worked illustration only — no real leaf device profile ships in this
// repository, since leaf profile classes are explicitly out of scope
// (spec §1).
package example

import (
	"context"

	"busmaster/internal/busio"
	"busmaster/internal/device"
	"busmaster/internal/profile"
)

// opcodeFamily is this profile's leading byte, distinct from the generic
// device-info family (0x00).
const opcodeFamily = 0x10

const (
	subReadRelay  = 0x00
	subWriteRelay = 0x01
)

const codeRelayOutOfRange profile.Code = 1

// Device is a two-opcode relay-board profile: read and set a single
// relay output. It embeds *device.Core instead of device.Device since it
// needs raw Transceive but not the generic info/storage surface.
type Device struct {
	*device.Core
}

// New builds a Device bound to addr over transport.
func New(addr byte, transport *busio.Transport) *Device {
	return &Device{Core: device.NewCore(addr, transport)}
}

// OpcodeFamily implements profile.Extension.
func (d *Device) OpcodeFamily() byte { return opcodeFamily }

// relayCount is a made-up board size used only to show a profile raising
// its own error code via profile.Error instead of busio.ErrorKind.
const relayCount = 8

func checkRelayIndex(n uint8) error {
	if n >= relayCount {
		return &profile.Error{Code: codeRelayOutOfRange}
	}
	return nil
}

// ReadRelay reports whether relay n (0-indexed) is currently energized.
func (d *Device) ReadRelay(ctx context.Context, n uint8) (bool, error) {
	if err := checkRelayIndex(n); err != nil {
		return false, err
	}
	raw, kind := d.Transceive(ctx, []byte{opcodeFamily, subReadRelay, n}, 1)
	if kind != busio.Success {
		return false, kind
	}
	return raw[0] != 0, nil
}

// SetRelay energizes or de-energizes relay n.
func (d *Device) SetRelay(ctx context.Context, n uint8, on bool) error {
	if err := checkRelayIndex(n); err != nil {
		return err
	}
	var v byte
	if on {
		v = 1
	}
	_, kind := d.Transceive(ctx, []byte{opcodeFamily, subWriteRelay, n, v}, 0)
	if kind != busio.Success {
		return kind
	}
	return nil
}
