// Package enum implements the enumeration driver (spec §4.9): assigning
// contiguous bus addresses starting at 1, via sequential
// neighbor-chaining with automatic fallback to the binary UUID searcher.
package enum

import (
	"context"
	"time"

	"busmaster/internal/busio"
	"busmaster/internal/locator"
)

// Result is one assigned slot: the UUID discovered and the address it was
// given.
type Result struct {
	UUID    uint32
	Address byte
}

// Report is the outcome of a full enumeration run. OrderKnown is true iff
// every Result reflects physical bus order (pure sequential discovery);
// it goes false the moment any device is placed via the binary-search
// fallback, since that path has no notion of physical adjacency.
type Report struct {
	Results    []Result
	OrderKnown bool
}

// searchDelay is the default inter-assertion delay passed to the binary
// searcher fallback (spec §6 default 5ms).
const searchDelay = 5 * time.Millisecond

// EnumerateDevices assigns contiguous bus addresses starting at 1.
// useSeq selects the sequential neighbor-chaining path; useBin selects
// (or, when useSeq is also true, enables falling back to) the binary
// UUID searcher. Rejecting both flags false is the caller's mistake
// (spec §4.9 step 1).
func EnumerateDevices(ctx context.Context, loc *locator.Locator, useSeq, useBin bool) (Report, busio.ErrorKind) {
	if !useSeq && !useBin {
		return Report{}, busio.InvalidArgument
	}

	if kind := loc.ResetAllBusAddresses(ctx); kind != busio.Success {
		return Report{}, kind
	}

	if !useSeq {
		return enumerateBinaryOnly(ctx, loc)
	}
	return enumerateSequential(ctx, loc, useBin)
}

// enumerateBinaryOnly runs the full-bus binary searcher and assigns
// addresses in discovery order (spec §4.9 step 3).
func enumerateBinaryOnly(ctx context.Context, loc *locator.Locator) (Report, busio.ErrorKind) {
	s := locator.NewSearcher(loc, searchDelay, false)
	uuids, err := s.FindAllDevices(ctx)
	if err != nil {
		return Report{}, busio.Unspecified
	}

	results := make([]Result, 0, len(uuids))
	for i, uuid := range uuids {
		addr := byte(i + 1)
		if kind := loc.SetBusAddress(ctx, uuid, addr); kind != busio.Success {
			return Report{Results: results, OrderKnown: false}, kind
		}
		results = append(results, Result{UUID: uuid, Address: addr})
	}
	return Report{Results: results, OrderKnown: false}, busio.Success
}

// enumerateSequential drives the neighbor-chaining loop (spec §4.9 step
// 4), falling back to a restricted binary search when a broadcast ping
// does not cleanly find exactly one unaddressed device and useBin is set.
func enumerateSequential(ctx context.Context, loc *locator.Locator, useBin bool) (Report, busio.ErrorKind) {
	if kind := loc.DisableBusNeighbours(ctx); kind != busio.Success {
		return Report{}, kind
	}

	var results []Result
	orderKnown := true
	next := byte(1)

	for {
		uuid, kind := loc.SendBroadcastPing(ctx)
		if kind == busio.Success {
			if setKind := loc.SetBusAddress(ctx, uuid, next); setKind != busio.Success {
				return Report{Results: results, OrderKnown: orderKnown}, setKind
			}
			results = append(results, Result{UUID: uuid, Address: next})
			next++
			if enableKind := loc.EnableBusNeighbours(ctx); enableKind != busio.Success {
				return Report{Results: results, OrderKnown: orderKnown}, enableKind
			}
			continue
		}

		if !useBin {
			return Report{Results: results, OrderKnown: orderKnown}, busio.Success
		}

		s := locator.NewSearcher(loc, searchDelay, true)
		uuids, err := s.FindAllDevices(ctx)
		if err != nil {
			return Report{Results: results, OrderKnown: orderKnown}, busio.Unspecified
		}
		if len(uuids) == 0 {
			return Report{Results: results, OrderKnown: orderKnown}, busio.Success
		}

		orderKnown = false
		for _, u := range uuids {
			if setKind := loc.SetBusAddress(ctx, u, next); setKind != busio.Success {
				return Report{Results: results, OrderKnown: orderKnown}, setKind
			}
			results = append(results, Result{UUID: u, Address: next})
			next++
		}
		// Loop back to the sequential ping: the newly addressed devices may
		// have neighbors of their own that are now reachable (spec §4.9).
	}
}
