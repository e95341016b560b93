// Package device implements the generic device-information protocol every
// slave speaks (spec §4.6): basic/extended info, packet statistics,
// uptime, and static-storage paging, all built on top of a shared
// transceive handle so per-profile leaf types can reuse it without a deep
// inheritance chain (Design Note 9.4).
package device

import (
	"encoding/binary"
)

// familyByte prefixes every sub-opcode of the generic device-info command
// family (spec §4.6).
const familyByte = 0x00

const (
	subName            = 0x00
	subUptime          = 0x01
	subVersion         = 0x02
	subPacketStats     = 0x07
	subUUID            = 0x09
	subExtendedInfo    = 0x0A
	subStorageCapacity = 0x0B
	subStorageRead     = 0x0C
	subStorageWrite    = 0x0D
)

const (
	flagStatisticsAvailable = 1 << 7
	flagPacketFormatFlag    = 1 << 3
	flagCRCKindMask         = 0x07
)

// Info is the basic DeviceInfo packet (spec §3).
type Info struct {
	ProtocolID           byte
	TypeID               byte
	CRCKind              byte
	StatisticsAvailable  bool
	PacketFormatExtended bool
	UptimeFrequency      uint16

	// Legacy-only fields (PacketFormatExtended == false).
	BufferSize    uint16
	NameLength    uint8
	VersionLength uint8

	// Extended-only fields (PacketFormatExtended == true).
	ExtendedInfoLength uint16
	UUID               uint32
}

// ExtendedInfo is populated on demand by Device.FetchExtendedInfo and
// read from the device at most once per FetchInfo (spec §3).
type ExtendedInfo struct {
	DeviceName string
	Version    string
	BufferSize uint16
}

// PacketStatistics is the slave's own view of its packet counters (spec
// §3), distinct from the host-side busio.HostStatistics.
type PacketStatistics struct {
	Correct        uint32
	BufferOverflow uint32
	Lost           uint32
	ChecksumError  uint32
}

// StateKind tags which fields of State are populated (Design Note 9.2).
type StateKind int

const (
	StateUninitialized StateKind = iota
	StateBasicKnown
	StateExtendedKnown
)

// State replaces a nullable "info may be null before init" field with an
// explicit sum type: Uninitialized, BasicKnown(Info), or
// ExtendedKnown(Info, ExtendedInfo).
type State struct {
	Kind     StateKind
	Info     Info
	Extended ExtendedInfo
}

func parseInfo(raw []byte) Info {
	var info Info
	info.ProtocolID = raw[0]
	info.TypeID = raw[1]
	flags := raw[2]
	info.StatisticsAvailable = flags&flagStatisticsAvailable != 0
	info.PacketFormatExtended = flags&flagPacketFormatFlag != 0
	info.CRCKind = flags & flagCRCKindMask
	info.UptimeFrequency = binary.LittleEndian.Uint16(raw[3:5])

	if info.PacketFormatExtended {
		info.ExtendedInfoLength = binary.LittleEndian.Uint16(raw[5:7])
		info.UUID = binary.LittleEndian.Uint32(raw[7:11])
	} else {
		info.BufferSize = binary.LittleEndian.Uint16(raw[5:7])
		// raw[7:9] is reserved.
		info.NameLength = raw[9]
		info.VersionLength = raw[10]
	}
	return info
}

func parseExtendedInfoBlock(raw []byte) ExtendedInfo {
	nameLen := int(raw[1])
	versionLen := int(raw[2])
	bufferSize := binary.LittleEndian.Uint16(raw[3:5])
	data := raw[5:]
	name := string(data[:nameLen])
	version := string(data[nameLen : nameLen+versionLen])
	return ExtendedInfo{DeviceName: name, Version: version, BufferSize: bufferSize}
}

func parsePacketStatistics(raw []byte) PacketStatistics {
	return PacketStatistics{
		Correct:        binary.LittleEndian.Uint32(raw[0:4]),
		BufferOverflow: binary.LittleEndian.Uint32(raw[4:8]),
		Lost:           binary.LittleEndian.Uint32(raw[8:12]),
		ChecksumError:  binary.LittleEndian.Uint32(raw[12:16]),
	}
}

const infoPacketLen = 11
