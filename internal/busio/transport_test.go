package busio

import (
	"context"
	"testing"
	"time"

	"busmaster/internal/frame"
	"busmaster/internal/serialport"
)

func newTestTransport(exchanges ...serialport.Exchange) (*Transport, *serialport.Mock) {
	mock := serialport.NewMock(exchanges...)
	arb := NewArbiter(115200, time.Millisecond)
	return NewTransport(mock, arb), mock
}

// TestScenarioAPing exercises spec §8 Scenario A: a bare ping to address 5
// that succeeds first try.
func TestScenarioAPing(t *testing.T) {
	good := frame.Encode(0x05, nil)
	tr, _ := newTestTransport(serialport.Exchange{Resp: good})

	resp, kind := tr.Transceive(context.Background(), 0x05, nil, 0)
	if kind != Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if len(resp) != 0 {
		t.Fatalf("resp = %v, want empty", resp)
	}
	stats := tr.Stats()
	if stats.Successes != 1 {
		t.Fatalf("Successes = %d, want 1", stats.Successes)
	}
}

// TestScenarioBRetryClassification exercises spec §8 Scenario B: two
// corrupted-CRC responses followed by a correct one.
func TestScenarioBRetryClassification(t *testing.T) {
	good := frame.Encode(0x05, nil)
	bad := append([]byte{}, good...)
	bad[len(bad)-1] ^= 0xFF

	tr, mock := newTestTransport(
		serialport.Exchange{Resp: bad},
		serialport.Exchange{Resp: bad},
		serialport.Exchange{Resp: good},
	)

	resp, kind := tr.Transceive(context.Background(), 0x05, nil, 0)
	if kind != Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if len(resp) != 0 {
		t.Fatalf("resp = %v, want empty", resp)
	}

	stats := tr.Stats()
	if stats.ChecksumErrors != 2 {
		t.Fatalf("ChecksumErrors = %d, want 2", stats.ChecksumErrors)
	}
	if stats.Successes != 1 {
		t.Fatalf("Successes = %d, want 1", stats.Successes)
	}
	if !mock.Exhausted() {
		t.Fatalf("expected exactly 3 attempts, mock not exhausted")
	}
}

func TestTransceiveExhaustsRetriesAndSurfacesLastKind(t *testing.T) {
	tr, _ := newTestTransport(
		serialport.Exchange{Resp: nil},
		serialport.Exchange{Resp: nil},
		serialport.Exchange{Resp: nil},
	)
	_, kind := tr.Transceive(context.Background(), 0x05, nil, 0)
	if kind != TransportReceptionNoAnswerError {
		t.Fatalf("kind = %v, want TransportReceptionNoAnswerError", kind)
	}
	stats := tr.Stats()
	if stats.NoAnswer != 3 {
		t.Fatalf("NoAnswer = %d, want 3", stats.NoAnswer)
	}
}

func TestTransceiveMissingData(t *testing.T) {
	good := frame.Encode(0x05, []byte{0x01, 0x02, 0x03, 0x04})
	tr, _ := newTestTransport(
		serialport.Exchange{Resp: good[:3]}, // short read
		serialport.Exchange{Resp: good[:3]},
		serialport.Exchange{Resp: good[:3]},
	)
	_, kind := tr.Transceive(context.Background(), 0x05, nil, 4)
	if kind != TransportReceptionMissingDataError {
		t.Fatalf("kind = %v, want TransportReceptionMissingDataError", kind)
	}
	if tr.Stats().MissingData != 3 {
		t.Fatalf("MissingData = %d, want 3", tr.Stats().MissingData)
	}
}

func TestTransmitOnlyMode(t *testing.T) {
	tr, mock := newTestTransport(serialport.Exchange{OK: serialport.BoolPtr(true)})
	tr.SetMode(ModeTransmitOnly)

	resp, kind := tr.Transceive(context.Background(), 0x05, nil, 4)
	if kind != Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if len(resp) != 4 {
		t.Fatalf("resp length = %d, want 4", len(resp))
	}
	if mock.TransceiveCall != 0 {
		t.Fatalf("Transceive should not be called in TransmitOnly mode")
	}
}

func TestReceiveOnlyMode(t *testing.T) {
	good := frame.Encode(0x05, nil)
	tr, mock := newTestTransport(serialport.Exchange{Resp: good})
	tr.SetMode(ModeReceiveOnly)

	_, kind := tr.Transceive(context.Background(), 0x05, nil, 0)
	if kind != Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if mock.TransmitCalls != 0 {
		t.Fatalf("Transmit should not be called in ReceiveOnly mode")
	}
}

func TestTransceiveBroadcastNoRetryMapsToNoAssertionDetected(t *testing.T) {
	tr, mock := newTestTransport(serialport.Exchange{Resp: nil})
	_, kind := tr.TransceiveBroadcast(context.Background(), []byte{0x04, 0x00}, 1)
	if kind != NoAssertionDetected {
		t.Fatalf("kind = %v, want NoAssertionDetected", kind)
	}
	if mock.TransceiveCall != 1 {
		t.Fatalf("expected exactly one attempt, got %d", mock.TransceiveCall)
	}
}

func TestTransceiveBroadcastChecksumErrorIsNotRetried(t *testing.T) {
	tr, mock := newTestTransport(serialport.Exchange{Resp: []byte{0xFF, 0xFF, 0xFF}})
	_, kind := tr.TransceiveBroadcast(context.Background(), []byte{0x04, 0x00}, 1)
	if kind != TransportChecksumError {
		t.Fatalf("kind = %v, want TransportChecksumError", kind)
	}
	if mock.TransceiveCall != 1 {
		t.Fatalf("expected exactly one attempt, got %d", mock.TransceiveCall)
	}
}
