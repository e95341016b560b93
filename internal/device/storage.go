package device

import (
	"bytes"
	"context"
	"encoding/binary"

	"busmaster/internal/busio"
)

// storageFrameOverhead is the bytes of a write frame's payload consumed
// by the opcode and offset fields, leaving the rest for data
// (family + sub + 4-byte offset).
const storageFrameOverhead = 2 + 4

// statusSuccess, statusAddressSize and the "anything else" bucket are the
// status-byte convention shared by storage read and write replies
// (spec §4.6).
const (
	statusSuccess     = 0x00
	statusAddressSize = 0x01
)

// fetchStorageInfo lazily fetches and caches capacity/page_size; both are
// static for the lifetime of a device so one round trip suffices.
func (d *Device) fetchStorageInfo(ctx context.Context) (pageSize uint16, capacity uint32, kind busio.ErrorKind) {
	d.storageMu.Lock()
	defer d.storageMu.Unlock()
	if d.storageKnown {
		return d.pageSize, d.capacity, busio.Success
	}

	raw, kind := d.Transceive(ctx, []byte{familyByte, subStorageCapacity}, 6)
	if kind != busio.Success {
		return 0, 0, kind
	}
	capacity = binary.LittleEndian.Uint32(raw[0:4])
	pageSize = binary.LittleEndian.Uint16(raw[4:6])

	d.capacity = capacity
	d.pageSize = pageSize
	d.storageKnown = true
	return pageSize, capacity, busio.Success
}

// StorageCapacity reports the device's static-storage capacity and page
// size, fetching and caching them on first use.
func (d *Device) StorageCapacity(ctx context.Context) (capacity uint32, pageSize uint16, kind busio.ErrorKind) {
	pageSize, capacity, kind = d.fetchStorageInfo(ctx)
	return capacity, pageSize, kind
}

// maxFramePayload returns the largest data payload a single storage frame
// can carry, derived from the device's advertised buffer_size (the
// largest frame it accepts, address and CRC included).
func (d *Device) maxFramePayload() (int, busio.ErrorKind) {
	var bufferSize uint16
	switch d.State().Kind {
	case StateExtendedKnown:
		bufferSize = d.State().Extended.BufferSize
	case StateBasicKnown:
		bufferSize = d.State().Info.BufferSize
	default:
		return 0, busio.DeviceNotInitialized
	}
	overhead := 2 /* address + crc */ + storageFrameOverhead
	if int(bufferSize) <= overhead {
		return 0, busio.DeviceStaticStorageAddressSizeError
	}
	return int(bufferSize) - overhead, busio.Success
}

// ReadStaticStorage issues one storage-read opcode for exactly length
// bytes starting at offset.
func (d *Device) ReadStaticStorage(ctx context.Context, offset uint32, length uint16) ([]byte, busio.ErrorKind) {
	req := make([]byte, 2+4+2)
	req[0], req[1] = familyByte, subStorageRead
	binary.LittleEndian.PutUint32(req[2:6], offset)
	binary.LittleEndian.PutUint16(req[6:8], length)

	raw, kind := d.Transceive(ctx, req, 1+int(length))
	if kind != busio.Success {
		return nil, kind
	}
	status := raw[0]
	if status == statusAddressSize {
		return nil, busio.DeviceStaticStorageAddressSizeError
	}
	if status != statusSuccess {
		return nil, busio.DeviceStaticStorageWriteError
	}
	return raw[1:], busio.Success
}

// WriteStaticStorage writes data starting at offset. offset must be a
// multiple of the device's page size. Writes are chunked one page per
// frame; a final partial page is zero-padded up to a full page, which the
// device treats as erasing the remainder of that page (spec §4.6).
// Over-length writes that would run past capacity are truncated to fit.
func (d *Device) WriteStaticStorage(ctx context.Context, offset uint32, data []byte) busio.ErrorKind {
	pageSize, capacity, kind := d.fetchStorageInfo(ctx)
	if kind != busio.Success {
		return kind
	}
	if offset%uint32(pageSize) != 0 {
		return busio.DeviceStaticStorageAddressSizeError
	}
	if offset >= capacity {
		return busio.DeviceStaticStorageAddressSizeError
	}
	if remaining := capacity - offset; uint32(len(data)) > remaining {
		data = data[:remaining]
	}

	maxPayload, kind := d.maxFramePayload()
	if kind != busio.Success {
		return kind
	}
	if maxPayload < int(pageSize) {
		return busio.DeviceStaticStorageAddressSizeError
	}

	for start := 0; start < len(data); start += int(pageSize) {
		end := start + int(pageSize)
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		if len(chunk) < int(pageSize) {
			padded := make([]byte, pageSize)
			copy(padded, chunk)
			chunk = padded
		}

		req := make([]byte, 2+4+len(chunk))
		req[0], req[1] = familyByte, subStorageWrite
		binary.LittleEndian.PutUint32(req[2:6], offset+uint32(start))
		copy(req[6:], chunk)

		raw, kind := d.Transceive(ctx, req, 1)
		if kind != busio.Success {
			return kind
		}
		switch raw[0] {
		case statusSuccess:
		case statusAddressSize:
			return busio.DeviceStaticStorageAddressSizeError
		default:
			return busio.DeviceStaticStorageWriteError
		}
	}
	return busio.Success
}

// maxStringChunk bounds a single string-read request per spec §4.6:
// up to 256 bytes, but never more than buffer_size - 1 can fit in a
// frame response.
func maxStringChunk(bufferSize uint16) int {
	chunk := 256
	if limit := int(bufferSize) - 1; limit < chunk {
		chunk = limit
	}
	if chunk < 1 {
		chunk = 1
	}
	return chunk
}

// ReadStringFromStaticStorage reads up to maxReadSize bytes starting at
// offset, stopping at the first NUL byte, and decodes the result as
// UTF-8.
func (d *Device) ReadStringFromStaticStorage(ctx context.Context, offset uint32, maxReadSize int) (string, busio.ErrorKind) {
	var bufferSize uint16
	switch d.State().Kind {
	case StateExtendedKnown:
		bufferSize = d.State().Extended.BufferSize
	case StateBasicKnown:
		bufferSize = d.State().Info.BufferSize
	default:
		return "", busio.DeviceNotInitialized
	}
	chunkSize := maxStringChunk(bufferSize)

	var data []byte
	pos := offset
	for len(data) < maxReadSize {
		toRead := chunkSize
		if remaining := maxReadSize - len(data); remaining < toRead {
			toRead = remaining
		}
		chunk, kind := d.ReadStaticStorage(ctx, pos, uint16(toRead))
		if kind != busio.Success {
			return "", kind
		}
		if idx := bytes.IndexByte(chunk, 0); idx >= 0 {
			data = append(data, chunk[:idx]...)
			return string(data), busio.Success
		}
		data = append(data, chunk...)
		pos += uint32(len(chunk))
		if len(chunk) < toRead {
			break
		}
	}
	return string(data), busio.Success
}

// WriteStringToStaticStorage NUL-terminates s, truncating it to fit
// capacity-1 bytes if necessary, and writes it starting at offset.
func (d *Device) WriteStringToStaticStorage(ctx context.Context, offset uint32, s string) busio.ErrorKind {
	_, capacity, kind := d.fetchStorageInfo(ctx)
	if kind != busio.Success {
		return kind
	}
	maxLen := int(capacity) - 1
	if maxLen < 0 {
		maxLen = 0
	}
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	payload := append([]byte(s), 0x00)
	return d.WriteStaticStorage(ctx, offset, payload)
}
