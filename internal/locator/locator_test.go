package locator

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"busmaster/internal/busio"
	"busmaster/internal/frame"
	"busmaster/internal/serialport"
)

func newTestLocator(exchanges ...serialport.Exchange) *Locator {
	mock := serialport.NewMock(exchanges...)
	arb := busio.NewArbiter(115200, time.Millisecond)
	return New(busio.NewTransport(mock, arb))
}

func TestWhoIsThere(t *testing.T) {
	want := uint32(0xCAFEBABE)
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, want)
	l := newTestLocator(serialport.Exchange{Resp: frame.Encode(frame.BroadcastAddress, payload)})

	got, kind := l.WhoIsThere(context.Background())
	if kind != busio.Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if got != want {
		t.Fatalf("uuid = %#x, want %#x", got, want)
	}
}

func TestSetBusAddressRejected(t *testing.T) {
	l := newTestLocator(serialport.Exchange{Resp: frame.Encode(frame.BroadcastAddress, []byte{0})})
	if kind := l.SetBusAddress(context.Background(), 1, 5); kind != busio.DeviceRejectedBusAddress {
		t.Fatalf("kind = %v, want DeviceRejectedBusAddress", kind)
	}
}

func TestSetBusAddressAccepted(t *testing.T) {
	l := newTestLocator(serialport.Exchange{Resp: frame.Encode(frame.BroadcastAddress, []byte{1})})
	if kind := l.SetBusAddress(context.Background(), 1, 5); kind != busio.Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
}

// TestNoResponseBroadcastsSucceedOnSilence checks that the no-reply
// broadcasts (spec §4.7 sub_ops 0x01/0x02/0x03/0x06, plus PingByUUID and
// ResetBusAddress) go out over the write-only transmit path and report
// Success on a real slave's silence, rather than reading a reply frame
// that is never sent and misclassifying it as NoAssertionDetected.
func TestNoResponseBroadcastsSucceedOnSilence(t *testing.T) {
	newSilentLocator := func() *Locator {
		mock := serialport.NewMock(
			serialport.Exchange{}, serialport.Exchange{}, serialport.Exchange{},
			serialport.Exchange{}, serialport.Exchange{}, serialport.Exchange{},
		)
		arb := busio.NewArbiter(115200, time.Millisecond)
		return New(busio.NewTransport(mock, arb))
	}

	l := newSilentLocator()
	ctx := context.Background()
	if kind := l.EnableBusNeighbours(ctx); kind != busio.Success {
		t.Fatalf("EnableBusNeighbours kind = %v, want Success", kind)
	}
	if kind := l.DisableBusNeighbours(ctx); kind != busio.Success {
		t.Fatalf("DisableBusNeighbours kind = %v, want Success", kind)
	}
	if kind := l.ResetAllBusAddresses(ctx); kind != busio.Success {
		t.Fatalf("ResetAllBusAddresses kind = %v, want Success", kind)
	}
	if kind := l.Sleep(ctx); kind != busio.Success {
		t.Fatalf("Sleep kind = %v, want Success", kind)
	}
	if kind := l.PingByUUID(ctx, 0x1234); kind != busio.Success {
		t.Fatalf("PingByUUID kind = %v, want Success", kind)
	}
	if kind := l.ResetBusAddress(ctx, 0x1234); kind != busio.Success {
		t.Fatalf("ResetBusAddress kind = %v, want Success", kind)
	}
}

func TestEncodeSearchAddressMinimalLength(t *testing.T) {
	cases := []struct {
		prefix uint32
		want   int
	}{
		{0, 0},
		{0xFF, 1},
		{0x100, 2},
		{0xFFFF, 2},
		{0x10000, 3},
		{0xFFFFFF, 3},
		{0x1000000, 4},
	}
	for _, c := range cases {
		got := len(encodeSearchAddress(c.prefix))
		if got != c.want {
			t.Errorf("encodeSearchAddress(%#x) length = %d, want %d", c.prefix, got, c.want)
		}
	}
}

// TestScanBusAddressesStopOnMissing: three consecutive addresses answer,
// the fourth stays silent through all three transport attempts, and
// stopOnMissing halts the scan there so address 5 is never reported.
func TestScanBusAddressesStopOnMissing(t *testing.T) {
	ping := func(addr byte) []byte { return frame.Encode(addr, nil) }
	l := newTestLocator(
		serialport.Exchange{Resp: ping(1)},
		serialport.Exchange{Resp: ping(2)},
		serialport.Exchange{Resp: ping(3)},
		serialport.Exchange{Resp: nil}, // address 4: silent on every attempt
		serialport.Exchange{Resp: nil},
		serialport.Exchange{Resp: nil},
		serialport.Exchange{Resp: ping(5)},
	)
	found, kind := l.ScanBusAddresses(context.Background(), 1, 5, true)
	if kind != busio.Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if len(found) != 3 || found[0] != 1 || found[1] != 2 || found[2] != 3 {
		t.Fatalf("found = %v, want [1 2 3]", found)
	}
}

func TestScanBusAddressesRejectsInvalidRange(t *testing.T) {
	l := newTestLocator()
	cases := []struct {
		first, last byte
	}{
		{0, 10},  // address 0 is reserved for broadcasts
		{1, 128}, // above the valid unicast range
		{5, 2},   // first > last
	}
	for _, c := range cases {
		if _, kind := l.ScanBusAddresses(context.Background(), c.first, c.last, false); kind != busio.InvalidArgument {
			t.Fatalf("ScanBusAddresses(%d, %d) kind = %v, want InvalidArgument", c.first, c.last, kind)
		}
	}
}

func TestScanBusAddressesWithoutStopOnMissing(t *testing.T) {
	ping := func(addr byte) []byte { return frame.Encode(addr, nil) }
	l := newTestLocator(
		serialport.Exchange{Resp: ping(1)},
		serialport.Exchange{Resp: nil}, // address 2: silent on every attempt
		serialport.Exchange{Resp: nil},
		serialport.Exchange{Resp: nil},
		serialport.Exchange{Resp: ping(3)},
	)
	found, kind := l.ScanBusAddresses(context.Background(), 1, 3, false)
	if kind != busio.Success {
		t.Fatalf("kind = %v, want Success", kind)
	}
	if len(found) != 2 || found[0] != 1 || found[1] != 3 {
		t.Fatalf("found = %v, want [1 3]", found)
	}
}
