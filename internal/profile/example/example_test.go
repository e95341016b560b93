package example

import (
	"context"
	"testing"
	"time"

	"busmaster/internal/busio"
	"busmaster/internal/frame"
	"busmaster/internal/profile"
	"busmaster/internal/serialport"
)

func TestReadRelay(t *testing.T) {
	mock := serialport.NewMock(serialport.Exchange{Resp: frame.Encode(0x05, []byte{1})})
	tr := busio.NewTransport(mock, busio.NewArbiter(115200, time.Millisecond))
	d := New(0x05, tr)

	on, err := d.ReadRelay(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReadRelay error: %v", err)
	}
	if !on {
		t.Fatalf("on = false, want true")
	}
}

func TestReadRelayOutOfRange(t *testing.T) {
	mock := serialport.NewMock()
	tr := busio.NewTransport(mock, busio.NewArbiter(115200, time.Millisecond))
	d := New(0x05, tr)

	_, err := d.ReadRelay(context.Background(), relayCount)
	if err == nil {
		t.Fatalf("expected error")
	}
	if pe, ok := err.(*profile.Error); !ok || pe.Code != codeRelayOutOfRange {
		t.Fatalf("err = %v (%T), want *profile.Error{Code: codeRelayOutOfRange}", err, err)
	}
}

func TestOpcodeFamily(t *testing.T) {
	d := New(0x05, nil)
	if d.OpcodeFamily() != opcodeFamily {
		t.Fatalf("OpcodeFamily() = %#x, want %#x", d.OpcodeFamily(), opcodeFamily)
	}
}
