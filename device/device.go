// Package device defines the external-collaborator boundary of spec.md
// §1/§6: the HID wheel base and the game/telemetry source. Only
// interfaces and plain data types live here — no concrete HID or game
// protocol implementation ships in this repo (spec.md §1 Non-goals).
//
// Grounded on engine.Resource's minimal consumer-interface pattern
// (engine/resource.go: ContentProvider, AudioPlayer, NetworkProvider) —
// small interfaces at the edge of the core, concrete implementations
// supplied by the caller.
package device

// Device is the HID wheel base boundary. Implementations perform the
// actual USB HID write; the RT loop calls WriteFFBReport once per tick
// and must treat any returned error as non-fatal (spec.md §4.6 step 8,
// §7: HID write failures feed fault.UsbStall, they never panic the RT
// thread).
type Device interface {
	WriteFFBReport(torqueNm float32, seq uint16) error
}

// NormalizedTelemetry is the subset of game/sim telemetry the pipeline
// consumes, normalized to engine units (spec.md §3).
type NormalizedTelemetry struct {
	WheelSpeed  float32 // normalized, signed
	DeviceTempC float32
	// Overcurrent is a current-sense signal reported by the wheel base
	// hardware (or injected by a test harness), feeding fault.Overcurrent
	// (spec.md §4.5: "External or injected signal").
	Overcurrent bool
}

// GameInput is one sample arriving from the game/telemetry source
// (spec.md §3 "GameInput"), enqueued into the overwrite-oldest ring
// (ringqueue.OverwriteSPSC), which overwrites the oldest unread samples
// when full rather than rejecting new ones.
type GameInput struct {
	FFBScalar float32
	Telemetry *NormalizedTelemetry // nil if no telemetry this sample
	TSMonoNS  uint64
}
