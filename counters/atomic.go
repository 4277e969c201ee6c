// Package counters implements the RT-safe metrics surface of spec.md
// §4.8 (C8): plain atomic counters plus a log-linear jitter/latency
// histogram fed by a lock-free sample queue.
//
// Grounded on status.AtomicFloat's bit-swap-to-reset pattern and
// status.Registry's writer/reader split (status/atomic_float.go,
// status/registry.go): the RT thread only ever calls Add/Store, never
// touches the snapshot path, and the snapshot path never blocks the RT
// thread.
package counters

import "sync/atomic"

// AtomicCounters is the full set of per-tick counters spec.md §4.8
// names. Every field is incremented from the RT thread and read/reset
// only from the non-RT orchestrator.
type AtomicCounters struct {
	Ticks                    atomic.Uint64
	MissedTicks              atomic.Uint64
	PipelineTimingViolations atomic.Uint64
	HidWriteErrors           atomic.Uint64
	TorqueSaturationCount    atomic.Uint64
	TorqueSaturationSamples  atomic.Uint64
	SafetyEvents             atomic.Uint64
	ProfileSwitches          atomic.Uint64
	TelemetrySamples         atomic.Uint64
	TelemetryLost            atomic.Uint64
}

// Snapshot is a point-in-time, non-atomic copy of AtomicCounters for
// reporting (orchestrator.Stats).
type Snapshot struct {
	Ticks                    uint64
	MissedTicks              uint64
	PipelineTimingViolations uint64
	HidWriteErrors           uint64
	TorqueSaturationCount    uint64
	TorqueSaturationSamples  uint64
	SafetyEvents             uint64
	ProfileSwitches          uint64
	TelemetrySamples         uint64
	TelemetryLost            uint64
}

// SnapshotAndReset atomically swaps every counter to zero and returns
// the values it held, so successive snapshots report non-overlapping
// windows (status.AtomicFloat's Swap-to-reset idiom, generalized to
// plain uint64 counters which need no bit-cast).
func (c *AtomicCounters) SnapshotAndReset() Snapshot {
	return Snapshot{
		Ticks:                    c.Ticks.Swap(0),
		MissedTicks:              c.MissedTicks.Swap(0),
		PipelineTimingViolations: c.PipelineTimingViolations.Swap(0),
		HidWriteErrors:           c.HidWriteErrors.Swap(0),
		TorqueSaturationCount:    c.TorqueSaturationCount.Swap(0),
		TorqueSaturationSamples:  c.TorqueSaturationSamples.Swap(0),
		SafetyEvents:             c.SafetyEvents.Swap(0),
		ProfileSwitches:          c.ProfileSwitches.Swap(0),
		TelemetrySamples:         c.TelemetrySamples.Swap(0),
		TelemetryLost:            c.TelemetryLost.Swap(0),
	}
}

// Peek copies every counter without resetting, for diagnostics that
// shouldn't disturb the windowed snapshot cadence.
func (c *AtomicCounters) Peek() Snapshot {
	return Snapshot{
		Ticks:                    c.Ticks.Load(),
		MissedTicks:              c.MissedTicks.Load(),
		PipelineTimingViolations: c.PipelineTimingViolations.Load(),
		HidWriteErrors:           c.HidWriteErrors.Load(),
		TorqueSaturationCount:    c.TorqueSaturationCount.Load(),
		TorqueSaturationSamples:  c.TorqueSaturationSamples.Load(),
		SafetyEvents:             c.SafetyEvents.Load(),
		ProfileSwitches:          c.ProfileSwitches.Load(),
		TelemetrySamples:         c.TelemetrySamples.Load(),
		TelemetryLost:            c.TelemetryLost.Load(),
	}
}
