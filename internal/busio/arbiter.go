package busio

import (
	"sync"
	"time"
)

// Timing constants derived from 8N1 byte framing (spec §4.4): a byte
// takes 10 bit-times (start + 8 data + stop) to transmit, and the bus is
// considered idle after 1.5 byte-times (15 bit-times) of silence.
const (
	bitTimesPerByte  = 10
	bitTimesPerQuiet = 15
)

// byteDuration returns the time to transmit one byte at baud.
func byteDuration(baud int) time.Duration {
	return time.Duration(bitTimesPerByte / float64(baud) * float64(time.Second))
}

// quietTime returns the minimum end-of-packet idle time at baud.
func quietTime(baud int) time.Duration {
	return time.Duration(bitTimesPerQuiet / float64(baud) * float64(time.Second))
}

// Arbiter serializes every transaction on one physical bus and enforces
// the inter-packet quiet time between transactions to *different*
// addresses (spec §4.4). It holds a single sync.Mutex, which does not
// grant the lock to waiters in FIFO order, for the whole attempt-triplet a transport retry performs (clear-buffer through final
// retry), so retries and timing are atomic with respect to other callers.
type Arbiter struct {
	mu sync.Mutex

	baud                 int
	deviceProcessingTime time.Duration

	lastAddress int // -1 until the first transaction
	readyAt     time.Time
}

// NewArbiter creates an Arbiter for a bus running at baud with the given
// per-slave processing time (spec §6 "device_processing_time", default
// 1ms when zero).
func NewArbiter(baud int, deviceProcessingTime time.Duration) *Arbiter {
	if deviceProcessingTime <= 0 {
		deviceProcessingTime = time.Millisecond
	}
	return &Arbiter{
		baud:                 baud,
		deviceProcessingTime: deviceProcessingTime,
		lastAddress:          -1,
	}
}

// Begin acquires the bus lock for one full attempt-triplet and, if the
// target address differs from the last one used, sleeps out the
// remainder of the required post-gap before returning. Callers must call
// the returned release function exactly once, after the transaction (and
// its retries) have completed, passing the on-wire length of what was
// sent and whether it was a broadcast (needs the extra processing-time
// margin per §4.4).
func (a *Arbiter) Begin(address int) (release func(txLen int, broadcast bool)) {
	a.mu.Lock()

	if a.lastAddress != address && !a.readyAt.IsZero() {
		if wait := time.Until(a.readyAt); wait > 0 {
			time.Sleep(wait)
		}
	}

	return func(txLen int, broadcast bool) {
		gap := byteDuration(a.baud)*time.Duration(txLen) + quietTime(a.baud)
		if broadcast {
			gap += a.deviceProcessingTime
		}
		a.lastAddress = address
		a.readyAt = time.Now().Add(gap)
		a.mu.Unlock()
	}
}
