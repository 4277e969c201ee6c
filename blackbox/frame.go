// Package blackbox implements the bounded post-mortem recording stream
// of spec.md §4.9 (C9): every tick's frame, a lower-rate telemetry
// stream, and a fault/health stream, written to a versioned framed
// binary format with a CRC32C-checked footer.
//
// Record-buffer pooling is grounded on event.Pool/event.BatchPool
// (event/pool.go, event/batch_pool.go) from the teacher repository — a
// sync.Pool of reusable payloads, acquired per-record and released once
// written. The dedicated-writer-goroutine-owns-the-file shape is
// grounded on engine.ClockScheduler.eventLoop's single-owner consumption
// loop.
package blackbox

import "github.com/openracing/ffbengine/safety"

// Frame is one stream-A record: the RT tick's inputs/outputs plus
// derived safety/processing-time context (spec.md §4.9 "per-tick
// frame").
type Frame struct {
	Seq              uint16
	TSMonoNS         uint64
	FFBIn            float32
	TorqueOut        float32
	WheelSpeed       float32
	HandsOff         bool
	SafetyState      safety.Kind
	ProcessingTimeNS uint32
	// NodeOutputs optionally records each pipeline node's contribution to
	// TorqueOut, for deep post-mortem analysis (spec.md §4.9 "optional
	// per-node trace"). The RT loop does not fill it, so frames it pushes
	// carry nil here and encode a zero node count.
	NodeOutputs []float32
}

// TelemetrySample is one stream-B record: the lower-rate (spec.md: 60Hz)
// telemetry view.
type TelemetrySample struct {
	TSMonoNS   uint64
	WheelSpeed float32
}

// HealthRecord is one stream-C record: a fault/health transition.
type HealthRecord struct {
	AtNS     uint64
	Kind     int32 // fault.Kind, kept as int32 to avoid a blackbox<->fault import cycle
	// Severity mirrors fault.Severity's underlying int (Info/Warning/
	// Critical), supplemented from original_source's HealthSeverity (see
	// DESIGN.md) so a post-mortem reader can triage without re-deriving
	// severity from Kind.
	Severity  int32
	Recovered bool
	Detail    string
}
