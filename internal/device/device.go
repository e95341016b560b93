package device

import (
	"context"
	"encoding/binary"
	"sync"

	"busmaster/internal/busio"
)

// Core is the thin per-slave transceive handle every leaf profile embeds
// instead of inheriting from a base class (Design Note 9.4): address plus
// the shared Transport, nothing else.
type Core struct {
	Address   byte
	Transport *busio.Transport
}

// NewCore builds a Core bound to addr over transport.
func NewCore(addr byte, transport *busio.Transport) *Core {
	return &Core{Address: addr, Transport: transport}
}

// Transceive is a thin pass-through so leaf profiles can issue their own
// opcodes without reaching into the Transport directly.
func (c *Core) Transceive(ctx context.Context, payload []byte, expectedLen int) ([]byte, busio.ErrorKind) {
	return c.Transport.Transceive(ctx, c.Address, payload, expectedLen)
}

// Device wraps a Core with the generic device-info protocol every slave
// answers (spec §4.6), plus the cached Info/ExtendedInfo state machine.
type Device struct {
	*Core

	mu    sync.RWMutex
	state State

	storageMu    sync.Mutex
	storageKnown bool
	pageSize     uint16
	capacity     uint32
}

// New builds a Device bound to addr over transport. Its State starts
// Uninitialized until FetchInfo succeeds.
func New(addr byte, transport *busio.Transport) *Device {
	return &Device{Core: NewCore(addr, transport)}
}

// SendPing issues the bare ping (an empty unicast frame) and reports
// whether the device answered.
func (d *Device) SendPing(ctx context.Context) busio.ErrorKind {
	_, kind := d.Transceive(ctx, nil, 0)
	return kind
}

// State returns a snapshot of the device's current knowledge (Info and,
// if fetched, ExtendedInfo). It is a value copy, not a live view, per
// Design Note 9.3.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// FetchInfo issues the basic DeviceInfo request and caches the result,
// moving State from Uninitialized to at least BasicKnown.
func (d *Device) FetchInfo(ctx context.Context) (Info, busio.ErrorKind) {
	raw, kind := d.Transceive(ctx, []byte{familyByte}, infoPacketLen)
	if kind != busio.Success {
		return Info{}, kind
	}
	info := parseInfo(raw)

	d.mu.Lock()
	d.state = State{Kind: StateBasicKnown, Info: info}
	d.mu.Unlock()
	return info, busio.Success
}

func (d *Device) requireInfo() (Info, busio.ErrorKind) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state.Kind == StateUninitialized {
		return Info{}, busio.DeviceNotInitialized
	}
	return d.state.Info, busio.Success
}

// FetchExtendedInfo populates ExtendedInfo, reading the single extended
// block for extended-format devices or assembling the equivalent from the
// two legacy name/version requests, and caches the result; while the
// State is ExtendedKnown, later calls return the cached value without a
// request. Requires FetchInfo to have run first.
func (d *Device) FetchExtendedInfo(ctx context.Context) (ExtendedInfo, busio.ErrorKind) {
	info, kind := d.requireInfo()
	if kind != busio.Success {
		return ExtendedInfo{}, kind
	}
	if st := d.State(); st.Kind == StateExtendedKnown {
		return st.Extended, busio.Success
	}

	var ext ExtendedInfo
	if info.PacketFormatExtended {
		raw, kind := d.Transceive(ctx, []byte{familyByte, subExtendedInfo}, int(info.ExtendedInfoLength))
		if kind != busio.Success {
			return ExtendedInfo{}, kind
		}
		ext = parseExtendedInfoBlock(raw)
	} else {
		name, kind := d.retrieveLegacyString(ctx, subName, info.NameLength)
		if kind != busio.Success {
			return ExtendedInfo{}, kind
		}
		version, kind := d.retrieveLegacyString(ctx, subVersion, info.VersionLength)
		if kind != busio.Success {
			return ExtendedInfo{}, kind
		}
		ext = ExtendedInfo{DeviceName: name, Version: version, BufferSize: info.BufferSize}
	}

	d.mu.Lock()
	d.state = State{Kind: StateExtendedKnown, Info: info, Extended: ext}
	d.mu.Unlock()
	return ext, busio.Success
}

func (d *Device) retrieveLegacyString(ctx context.Context, sub byte, length uint8) (string, busio.ErrorKind) {
	if length == 0 {
		return "", busio.Success
	}
	raw, kind := d.Transceive(ctx, []byte{familyByte, sub}, int(length))
	if kind != busio.Success {
		return "", kind
	}
	return string(raw), busio.Success
}

// RetrieveUptime reports device uptime in seconds, derived from the raw
// tick count and the device's uptime_frequency. Devices that report
// uptime_frequency == 0 do not support uptime.
func (d *Device) RetrieveUptime(ctx context.Context) (float64, busio.ErrorKind) {
	info, kind := d.requireInfo()
	if kind != busio.Success {
		return 0, kind
	}
	if info.UptimeFrequency == 0 {
		return 0, busio.DeviceUptimeNotSupported
	}
	raw, kind := d.Transceive(ctx, []byte{familyByte, subUptime}, 4)
	if kind != busio.Success {
		return 0, kind
	}
	ticks := binary.LittleEndian.Uint32(raw)
	return float64(ticks) / float64(info.UptimeFrequency), busio.Success
}

// RetrieveStatistics fetches the device's own packet counters. Requires
// Info.StatisticsAvailable.
func (d *Device) RetrieveStatistics(ctx context.Context) (PacketStatistics, busio.ErrorKind) {
	info, kind := d.requireInfo()
	if kind != busio.Success {
		return PacketStatistics{}, kind
	}
	if !info.StatisticsAvailable {
		return PacketStatistics{}, busio.DeviceStatisticsNotSupported
	}
	raw, kind := d.Transceive(ctx, []byte{familyByte, subPacketStats}, 16)
	if kind != busio.Success {
		return PacketStatistics{}, kind
	}
	return parsePacketStatistics(raw), busio.Success
}

// RetrieveUUID returns the device's 32-bit UUID. Extended-format devices
// ship it directly in DeviceInfo; legacy devices require an auxiliary
// request, and per spec §4.6 a failure there is reported as UUID 0 rather
// than propagated as an error — callers that need to distinguish "no
// UUID" from "device unreachable" should call FetchInfo themselves first.
func (d *Device) RetrieveUUID(ctx context.Context) (uint32, busio.ErrorKind) {
	info, kind := d.requireInfo()
	if kind != busio.Success {
		return 0, kind
	}
	if info.PacketFormatExtended {
		return info.UUID, busio.Success
	}
	raw, kind := d.Transceive(ctx, []byte{familyByte, subUUID}, 4)
	if kind != busio.Success {
		return 0, busio.Success
	}
	return binary.LittleEndian.Uint32(raw), busio.Success
}
