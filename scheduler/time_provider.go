// Package scheduler implements the absolute-deadline RT scheduler of
// spec.md §4.1 (C1): a drift-free, catch-up-bounded tick loop.
//
// Grounded on the teacher's engine.ClockScheduler.schedulerLoop — the
// "advance nextTickDeadline from itself, never from now" policy, and the
// teacher's bounded catch-up (engine.ClockScheduler's maxBehind) are kept
// verbatim as the core algorithm. Pause-awareness (engine.PausableClock)
// is dropped: an RT tick loop is never paused, only stopped.
package scheduler

import "time"

// TimeProvider abstracts wall/monotonic time so tests can inject a fake
// clock, mirroring the teacher's engine.TimeProvider interface.
type TimeProvider interface {
	Now() time.Time
}

// MonotonicTimeProvider is the production TimeProvider, backed directly
// by time.Now() (Go's runtime already returns a monotonic reading
// alongside wall-clock in the same time.Time value).
type MonotonicTimeProvider struct{}

func (MonotonicTimeProvider) Now() time.Time { return time.Now() }
