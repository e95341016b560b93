package locator

import (
	"context"
	"time"

	"busmaster/internal/busio"
)

// SearchAddress is one pending node of the binary UUID search's
// prefix-tree frontier (spec §4.8): every slave computes
// (uuid & ((1<<Level)-1)) == Prefix in response to a bus-assertion
// broadcast at this (Prefix, Level).
type SearchAddress struct {
	Prefix uint32
	Level  int
}

// Searcher drives the depth-first binary UUID search over a Locator,
// the real-world analogue of 1-Wire ROM search reimplemented for a
// UUID/CRC8 bus (no neighbor-disable required).
type Searcher struct {
	locator         *Locator
	delay           time.Duration
	onlyUnaddressed bool

	queue       []SearchAddress
	lastAssert  time.Time
	hasLastTime bool
}

// NewSearcher builds a Searcher over locator. delay is the minimum gap
// enforced between successive bus-assertion broadcasts (default 5ms when
// zero), protecting slow devices. onlyUnaddressed restricts assertions to
// devices without a bus address, for the enumeration fallback path.
func NewSearcher(locator *Locator, delay time.Duration, onlyUnaddressed bool) *Searcher {
	if delay <= 0 {
		delay = 5 * time.Millisecond
	}
	return &Searcher{
		locator:         locator,
		delay:           delay,
		onlyUnaddressed: onlyUnaddressed,
		queue:           []SearchAddress{{Prefix: 0, Level: 0}},
	}
}

func (s *Searcher) pushFront(n SearchAddress) {
	s.queue = append([]SearchAddress{n}, s.queue...)
}

func (s *Searcher) pushBack(n SearchAddress) {
	s.queue = append(s.queue, n)
}

func (s *Searcher) popFront() (SearchAddress, bool) {
	if len(s.queue) == 0 {
		return SearchAddress{}, false
	}
	n := s.queue[0]
	s.queue = s.queue[1:]
	return n, true
}

// Done reports whether the search frontier is empty.
func (s *Searcher) Done() bool { return len(s.queue) == 0 }

func (s *Searcher) throttle(ctx context.Context) error {
	if !s.hasLastTime {
		return nil
	}
	wait := s.delay - time.Since(s.lastAssert)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isLeftBranch reports whether prefix's bit at position level-1 is 0
// (spec §4.8 step 3).
func isLeftBranch(prefix uint32, level int) bool {
	return prefix&(1<<uint(level-1)) == 0
}

// FindNextDevice advances the search one step at a time, returning the
// next discovered UUID as soon as a leaf is reached: a level-32 match, or
// the level-33 node queued when the left branch at level 32 does not match.
// ok is false once the frontier empties with nothing further found; err
// is non-nil only on a hard transport failure that is not a classifiable
// match/no-match signal (spec §4.8's "aborts the whole search").
func (s *Searcher) FindNextDevice(ctx context.Context) (uuid uint32, ok bool, err error) {
	for !s.Done() {
		node, _ := s.popFront()

		if werr := s.throttle(ctx); werr != nil {
			return 0, false, werr
		}
		kind := s.locator.RequestAssertion(ctx, node.Prefix, node.Level, s.onlyUnaddressed)
		s.lastAssert = time.Now()
		s.hasLastTime = true

		matched := kind != busio.NoAssertionDetected

		if node.Level == 0 {
			if matched {
				s.pushFront(SearchAddress{Prefix: 0, Level: 1})
			}
			continue
		}

		left := isLeftBranch(node.Prefix, node.Level)

		switch {
		case matched && node.Level > 32:
			// Reached via the not-matched-left jump at level 32: every bit
			// of the prefix is fixed, so it is a complete UUID.
			return node.Prefix, true, nil

		case matched && node.Level < 32:
			s.pushFront(SearchAddress{Prefix: node.Prefix, Level: node.Level + 1})
			if left {
				s.pushBack(SearchAddress{Prefix: node.Prefix | (1 << uint(node.Level-1)), Level: node.Level})
			}

		case matched && node.Level == 32:
			if left {
				s.pushBack(SearchAddress{Prefix: node.Prefix | (1 << uint(node.Level-1)), Level: node.Level})
			}
			return node.Prefix, true, nil

		case !matched && left:
			s.pushFront(SearchAddress{Prefix: node.Prefix | (1 << uint(node.Level-1)), Level: node.Level + 1})

		default: // !matched, right branch: backtrack, nothing to enqueue
		}
	}
	return 0, false, nil
}

// FindAllDevices drains the search to completion and returns every
// discovered UUID in discovery order.
func (s *Searcher) FindAllDevices(ctx context.Context) ([]uint32, error) {
	var uuids []uint32
	for {
		uuid, ok, err := s.FindNextDevice(ctx)
		if err != nil {
			return uuids, err
		}
		if !ok {
			return uuids, nil
		}
		uuids = append(uuids, uuid)
	}
}
