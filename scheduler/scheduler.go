package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/openracing/ffbengine/ringqueue"
)

// jitterRingCapacity sizes the lock-free sample queue the scheduler feeds
// every tick; the non-RT collector drains it well under this capacity at
// a much lower frequency than 1kHz (counters.Collector).
const jitterRingCapacity = 4096

// AbsoluteScheduler drives a fixed-period tick loop using absolute
// deadlines rather than relative sleeps, so jitter never accumulates
// into drift (spec.md §4.1). Grounded on
// engine.ClockScheduler.schedulerLoop's "advance nextTickDeadline from
// itself" policy and its bounded catch-up (maxBehind = 2x interval).
type AbsoluteScheduler struct {
	clock    TimeProvider
	interval time.Duration

	missedTicks atomic.Uint64
	tickCount   atomic.Uint64

	jitterNS *ringqueue.SPSC[int64]
}

// NewAbsoluteScheduler constructs a scheduler for the given tick
// interval (spec.md default: 1ms).
func NewAbsoluteScheduler(clock TimeProvider, interval time.Duration) *AbsoluteScheduler {
	if clock == nil {
		clock = MonotonicTimeProvider{}
	}
	return &AbsoluteScheduler{
		clock:    clock,
		interval: interval,
		jitterNS: ringqueue.NewSPSC[int64](jitterRingCapacity),
	}
}

// JitterSamples exposes the lock-free queue of per-tick jitter samples
// (actual-fire-time minus deadline, in nanoseconds) for the non-RT
// histogram collector to drain (spec.md §4.8).
func (s *AbsoluteScheduler) JitterSamples() *ringqueue.SPSC[int64] { return s.jitterNS }

// MissedTicks returns the number of tick periods skipped entirely because
// the loop fell more than 2x the tick interval behind (spec.md §4.1:
// multiple missed periods in a single wake are counted as multiple
// misses, one per skipped period).
func (s *AbsoluteScheduler) MissedTicks() uint64 { return s.missedTicks.Load() }

// TickCount returns the number of ticks executed so far.
func (s *AbsoluteScheduler) TickCount() uint64 { return s.tickCount.Load() }

// Run blocks, invoking onTick once per tick interval until stop is
// closed. onTick receives the tick's monotonic nanosecond timestamp and
// sequence number; it must not block (this is the RT thread, spec.md
// §4.6). Run itself performs no allocation in its steady-state loop
// beyond what time.Sleep requires internally.
func (s *AbsoluteScheduler) Run(stop <-chan struct{}, onTick func(nowNS uint64, seq uint64)) {
	now := s.clock.Now()
	deadline := now.Add(s.interval)

	for {
		select {
		case <-stop:
			return
		default:
		}

		now = s.clock.Now()
		if now.Before(deadline) {
			sleepFor := deadline.Sub(now)
			if sleepFor > 0 {
				time.Sleep(sleepFor)
			}
			now = s.clock.Now()
		}

		jitter := now.Sub(deadline)
		s.jitterNS.TryPush(int64(jitter))

		seq := s.tickCount.Add(1) - 1
		onTick(uint64(now.UnixNano()), seq)

		// Re-measure after onTick returns: the loop may have fallen behind
		// during onTick itself, not just while sleeping toward deadline.
		after := s.clock.Now()

		maxBehind := s.interval * 2
		if overrun := after.Sub(deadline); overrun > maxBehind {
			// deadline is the period we just serviced; every full interval
			// of overrun beyond it is a period that never got a tick.
			missed := uint64(overrun / s.interval)
			s.missedTicks.Add(missed)
			// Smallest k that lands strictly in the future: missed full
			// periods were skipped, plus the one we're about to serve.
			deadline = deadline.Add(time.Duration(missed+1) * s.interval)
		} else {
			deadline = deadline.Add(s.interval)
		}
	}
}
