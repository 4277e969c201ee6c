package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	now atomic.Int64 // unix nanos
}

func newFakeClock(start time.Time) *fakeClock {
	c := &fakeClock{}
	c.now.Store(start.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.now.Load()) }

func (c *fakeClock) advance(d time.Duration) { c.now.Add(int64(d)) }

func TestRunTicksAtInterval(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	s := NewAbsoluteScheduler(clock, time.Millisecond)

	stop := make(chan struct{})
	var ticks atomic.Int64

	done := make(chan struct{})
	go func() {
		s.Run(stop, func(nowNS uint64, seq uint64) {
			clock.advance(time.Millisecond)
			if ticks.Add(1) >= 5 {
				close(stop)
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}

	if s.TickCount() < 5 {
		t.Fatalf("TickCount() = %d, want >= 5", s.TickCount())
	}
}

func TestMissedTicksCountsEveryPeriodSkipped(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	s := NewAbsoluteScheduler(clock, time.Millisecond)

	stop := make(chan struct{})
	n := 0
	s.Run(stop, func(nowNS uint64, seq uint64) {
		n++
		if n == 1 {
			// First deadline is at 1ms; jumping to 11ms overruns it by
			// exactly 10 periods, all of which are skipped entirely (no
			// tick executes for them) — spec.md §4.1 requires these be
			// counted as 10 missed ticks, not 1.
			clock.advance(11 * time.Millisecond)
		}
		if n >= 3 {
			close(stop)
		}
	})

	if got := s.MissedTicks(); got != 10 {
		t.Fatalf("MissedTicks() = %d, want 10", got)
	}
}

func TestJitterSamplesArePushed(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	s := NewAbsoluteScheduler(clock, time.Millisecond)

	stop := make(chan struct{})
	n := 0
	s.Run(stop, func(nowNS uint64, seq uint64) {
		clock.advance(time.Millisecond)
		n++
		if n >= 3 {
			close(stop)
		}
	})

	if s.JitterSamples().Len() == 0 {
		t.Fatalf("expected jitter samples to have been pushed")
	}
}
