// Package serialport implements the C3 back-end contract: raw byte I/O
// with a per-operation timeout and an input-buffer discard, plus a real
// go.bug.st/serial-backed implementation.
package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Backend is the external collaborator contract every bus driver depends
// on. It is treated as single-threaded; concurrent access is the bus
// arbiter's job, never the back-end's.
type Backend interface {
	// ClearInput discards any buffered input bytes.
	ClearInput() bool
	// Transmit writes bytes, blocking until written or timed out.
	Transmit(data []byte) bool
	// Transceive writes bytes then reads exactly expectedLen bytes within
	// the configured timeout. A short read returns the partial data
	// alongside a false success flag.
	Transceive(data []byte, expectedLen int) (resp []byte, ok bool)
	// Receive reads expectedLen bytes without writing first.
	Receive(expectedLen int) (resp []byte, ok bool)
}

// Port is a go.bug.st/serial-backed Backend for a physical RS-485/UART
// link. It owns the open file descriptor; callers serialize access to it
// through the bus arbiter, not through this type.
type Port struct {
	port    serial.Port
	name    string
	baud    int
	timeout time.Duration
}

// Config describes how to open a physical serial port.
type Config struct {
	Device    string
	Baud      int
	TimeoutMs int
}

// Open opens the named serial device at the configured baud rate with
// 8N1 framing (matching the bus's byte-duration assumptions in §4.4).
func Open(cfg Config) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialport: set timeout on %s: %w", cfg.Device, err)
	}
	return &Port{port: p, name: cfg.Device, baud: cfg.Baud, timeout: timeout}, nil
}

// Close closes the underlying port.
func (p *Port) Close() error {
	return p.port.Close()
}

// Baud returns the configured baud rate, needed by the arbiter's timing
// math (§4.4).
func (p *Port) Baud() int { return p.baud }

func (p *Port) ClearInput() bool {
	if err := p.port.ResetInputBuffer(); err != nil {
		return false
	}
	return true
}

func (p *Port) Transmit(data []byte) bool {
	n, err := p.port.Write(data)
	return err == nil && n == len(data)
}

func (p *Port) Transceive(data []byte, expectedLen int) ([]byte, bool) {
	if !p.Transmit(data) {
		return nil, false
	}
	return p.Receive(expectedLen)
}

func (p *Port) Receive(expectedLen int) ([]byte, bool) {
	if expectedLen == 0 {
		return nil, true
	}
	buf := make([]byte, expectedLen)
	total := 0
	deadline := time.Now().Add(p.timeout)
	for total < expectedLen {
		if time.Now().After(deadline) {
			return buf[:total], false
		}
		n, err := p.port.Read(buf[total:])
		if err != nil {
			return buf[:total], false
		}
		if n == 0 {
			// go.bug.st/serial returns 0, nil on read timeout rather than
			// an error; treat it the same as a deadline expiry.
			return buf[:total], false
		}
		total += n
	}
	return buf, true
}
