package locator

import (
	"context"
	"testing"
	"time"

	"busmaster/internal/busio"
	"busmaster/internal/frame"
)

func matchResp() []byte   { return frame.Encode(frame.BroadcastAddress, nil) }
func noMatchResp() []byte { return nil }

// TestScenarioDBinarySearchTwoUUIDs exercises spec §8 Scenario D: two
// devices whose UUIDs differ only in the highest bit (bit 31). The level-0
// probe matches (at least one device present); then the search must
// explore both the 0-prefixed and 1-prefixed subtrees at level 1 before
// reaching level 32 twice.
func TestScenarioDBinarySearchTwoUUIDs(t *testing.T) {
	uuidA := uint32(0)       // all bits 0
	uuidB := uint32(1) << 31 // only bit 31 set

	backend := &scriptedAssertionBackend{uuids: []uint32{uuidA, uuidB}}
	arb := busio.NewArbiter(115200, time.Millisecond)
	tr := busio.NewTransport(backend, arb)
	loc := New(tr)
	s := NewSearcher(loc, time.Millisecond, false)

	found, err := s.FindAllDevices(context.Background())
	if err != nil {
		t.Fatalf("FindAllDevices error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d devices, want 2: %v", len(found), found)
	}
	seen := map[uint32]bool{found[0]: true, found[1]: true}
	if !seen[uuidA] || !seen[uuidB] {
		t.Fatalf("found = %v, want {%#x, %#x}", found, uuidA, uuidB)
	}
}

func TestSearcherEmptyBusFindsNothing(t *testing.T) {
	backend := &scriptedAssertionBackend{uuids: nil}
	arb := busio.NewArbiter(115200, time.Millisecond)
	tr := busio.NewTransport(backend, arb)
	loc := New(tr)
	s := NewSearcher(loc, time.Millisecond, false)

	found, err := s.FindAllDevices(context.Background())
	if err != nil {
		t.Fatalf("FindAllDevices error: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found = %v, want empty", found)
	}
}

func TestSearcherSingleDevice(t *testing.T) {
	backend := &scriptedAssertionBackend{uuids: []uint32{0x12345678}}
	arb := busio.NewArbiter(115200, time.Millisecond)
	tr := busio.NewTransport(backend, arb)
	loc := New(tr)
	s := NewSearcher(loc, time.Millisecond, false)

	found, err := s.FindAllDevices(context.Background())
	if err != nil {
		t.Fatalf("FindAllDevices error: %v", err)
	}
	if len(found) != 1 || found[0] != 0x12345678 {
		t.Fatalf("found = %v, want [0x12345678]", found)
	}
}

// scriptedAssertionBackend is a serialport.Backend that plays the slave
// side of a bus-assertion broadcast directly from a set of UUIDs, rather
// than a fixed response script, since the searcher's request sequence
// depends on the responses it receives.
type scriptedAssertionBackend struct {
	uuids []uint32
}

func (b *scriptedAssertionBackend) ClearInput() bool { return true }

func (b *scriptedAssertionBackend) Transmit(data []byte) bool { return true }

func (b *scriptedAssertionBackend) Transceive(data []byte, expectedLen int) ([]byte, bool) {
	// data is a full frame: addr, family, sub, level, searchaddr..., crc.
	level := int(data[3])
	var prefix uint32
	searchBytes := data[4 : len(data)-1]
	for i, by := range searchBytes {
		prefix |= uint32(by) << uint(8*i)
	}

	var mask uint32
	if level == 0 {
		mask = 0
	} else if level >= 32 {
		mask = 0xFFFFFFFF
	} else {
		mask = (uint32(1) << uint(level)) - 1
	}

	matched := false
	for _, u := range b.uuids {
		if u&mask == prefix&mask {
			matched = true
			break
		}
	}

	if !matched {
		return noMatchResp(), false
	}
	return matchResp(), true
}

func (b *scriptedAssertionBackend) Receive(expectedLen int) ([]byte, bool) { return nil, false }
