package counters

import (
	"sync"

	"github.com/openracing/ffbengine/ringqueue"
)

// Collector drains a lock-free sample ring into a Histogram. It owns the
// only mutex in the counters package — and it is a mutex the RT thread
// never touches, since the RT thread only ever calls ring.TryPush
// (spec.md §5: "the RT thread never blocks on a lock").
//
// Grounded on original_source/crates/engine/src/metrics.rs's
// push_jitter/pop_jitter split (lock-free producer, mutex-guarded
// consumer-side aggregation).
type Collector struct {
	ring *ringqueue.SPSC[int64]
	hist Histogram
	mu   sync.Mutex
}

// NewCollector wraps ring, draining its int64 nanosecond samples into an
// internal Histogram.
func NewCollector(ring *ringqueue.SPSC[int64]) *Collector {
	return &Collector{ring: ring}
}

// Drain pops every currently-available sample from the ring and records
// it into the histogram. Safe to call concurrently with Snapshot; not
// safe to call concurrently with itself from multiple goroutines (single
// dedicated collector goroutine, matching the teacher's
// dedicated-owner-goroutine pattern in ClockScheduler.eventLoop).
func (c *Collector) Drain() int {
	n := 0
	for {
		v, ok := c.ring.TryPop()
		if !ok {
			break
		}
		c.mu.Lock()
		c.hist.Record(v)
		c.mu.Unlock()
		n++
	}
	return n
}

// Snapshot returns the current percentile readout.
func (c *Collector) Snapshot() HistogramSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hist.Snapshot()
}

// Reset clears the histogram (used after a snapshot that should start a
// fresh measurement window).
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
}
