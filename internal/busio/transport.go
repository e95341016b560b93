package busio

import (
	"context"
	"sync"

	"busmaster/internal/frame"
	"busmaster/internal/serialport"
)

// maxAttempts is the fixed retry budget for unicast transceive/transmit
// calls (spec §4.5).
const maxAttempts = 3

// Mode selects how the transport drives the back-end, letting the same
// engine serve offline capture replay and one-way telemetry paths.
type Mode int

const (
	// ModeNormal writes then reads, the default.
	ModeNormal Mode = iota
	// ModeTransmitOnly writes only; the expected response is assumed to
	// have arrived without actually reading it.
	ModeTransmitOnly
	// ModeReceiveOnly skips the write and reads as usual.
	ModeReceiveOnly
)

// HostStatistics is the host-side view of a bus or device's transport
// health (spec §3). It is returned by value everywhere — a snapshot, not
// a live handle back into the Transport — per Design Note 9.3.
type HostStatistics struct {
	ChecksumErrors uint64
	NoAnswer       uint64
	MissingData    uint64
	TransmitErrors uint64
	Successes      uint64
}

// Transport builds frames, drives a Backend through an Arbiter, and
// implements the retry/classification policy of spec §4.5.
type Transport struct {
	backend serialport.Backend
	arbiter *Arbiter
	mode    Mode

	mu    sync.Mutex
	stats HostStatistics
}

// NewTransport builds a Transport over backend, serialized through
// arbiter.
func NewTransport(backend serialport.Backend, arbiter *Arbiter) *Transport {
	return &Transport{backend: backend, arbiter: arbiter, mode: ModeNormal}
}

// SetMode switches the transmission mode (spec §4.5).
func (t *Transport) SetMode(m Mode) { t.mode = m }

// Mode reports the current transmission mode.
func (t *Transport) Mode() Mode { return t.mode }

// Stats returns a snapshot of the accumulated host statistics.
func (t *Transport) Stats() HostStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Transport) record(kind ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case Success:
		t.stats.Successes++
	case TransportChecksumError:
		t.stats.ChecksumErrors++
	case TransportReceptionNoAnswerError:
		t.stats.NoAnswer++
	case TransportReceptionMissingDataError:
		t.stats.MissingData++
	case TransportTransmissionError:
		t.stats.TransmitErrors++
	}
}

// classify turns a raw back-end outcome into an ErrorKind plus the decoded
// response payload, per the table in spec §4.5. The raw success flag from
// the back-end is intentionally not consulted: length against wantFrameLen
// and the CRC are the only things that determine the classification.
func classify(resp []byte, wantFrameLen int) (payload []byte, kind ErrorKind) {
	if len(resp) == 0 {
		return nil, TransportReceptionNoAnswerError
	}
	if len(resp) < wantFrameLen {
		return nil, TransportReceptionMissingDataError
	}
	_, p, err := frame.Decode(resp[:wantFrameLen])
	switch err {
	case nil:
		return p, Success
	case frame.ErrChecksum:
		return nil, TransportChecksumError
	default:
		return nil, TransportReceptionMissingDataError
	}
}

// attemptOnce performs exactly one clear+write+read cycle, obeying the
// transmission mode.
func (t *Transport) attemptOnce(reqFrame []byte, expectedLen int) ([]byte, ErrorKind) {
	t.backend.ClearInput()
	wantFrameLen := expectedLen + 2

	switch t.mode {
	case ModeReceiveOnly:
		resp, _ := t.backend.Receive(wantFrameLen)
		return classify(resp, wantFrameLen)

	case ModeTransmitOnly:
		if !t.backend.Transmit(reqFrame) {
			return nil, TransportTransmissionError
		}
		return make([]byte, expectedLen), Success

	default: // ModeNormal
		resp, _ := t.backend.Transceive(reqFrame, wantFrameLen)
		return classify(resp, wantFrameLen)
	}
}

// Transceive sends payload to addr and waits for an expectedLen-byte
// response, retrying up to three times per the classification table in
// spec §4.5.
func (t *Transport) Transceive(ctx context.Context, addr byte, payload []byte, expectedLen int) ([]byte, ErrorKind) {
	reqFrame := frame.Encode(addr, payload)
	release := t.arbiter.Begin(int(addr))
	defer func() { release(len(reqFrame), addr == frame.BroadcastAddress) }()

	var lastKind ErrorKind
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, Unspecified
		}
		resp, kind := t.attemptOnce(reqFrame, expectedLen)
		t.record(kind)
		if kind == Success {
			return resp, Success
		}
		lastKind = kind
		if !kind.retryable() {
			break
		}
	}
	return nil, lastKind
}

// Transmit sends payload to addr with no response expected (broadcasts,
// fire-and-forget commands), retrying on write failure up to three times.
func (t *Transport) Transmit(ctx context.Context, addr byte, payload []byte) ErrorKind {
	reqFrame := frame.Encode(addr, payload)
	release := t.arbiter.Begin(int(addr))
	defer func() { release(len(reqFrame), addr == frame.BroadcastAddress) }()

	var lastKind ErrorKind
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Unspecified
		}
		t.backend.ClearInput()
		if t.backend.Transmit(reqFrame) {
			t.record(Success)
			return Success
		}
		lastKind = TransportTransmissionError
		t.record(lastKind)
	}
	return lastKind
}

// TransceiveBroadcast performs a single-attempt, no-retry broadcast
// request/response exchange, used only for address assignment and
// bus-assertion search (spec §4.5). "No answer" is mapped to
// NoAssertionDetected — a positive discovery signal, not an error.
func (t *Transport) TransceiveBroadcast(ctx context.Context, payload []byte, expectedLen int) ([]byte, ErrorKind) {
	reqFrame := frame.Encode(frame.BroadcastAddress, payload)
	release := t.arbiter.Begin(int(frame.BroadcastAddress))
	defer func() { release(len(reqFrame), true) }()

	if err := ctx.Err(); err != nil {
		return nil, Unspecified
	}
	resp, kind := t.attemptOnce(reqFrame, expectedLen)
	t.record(kind)
	if kind == TransportReceptionNoAnswerError {
		return nil, NoAssertionDetected
	}
	return resp, kind
}
