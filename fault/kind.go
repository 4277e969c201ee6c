// Package fault implements fault detection and recovery (spec.md §4.5,
// C5): a closed set of detectors, each watching one failure mode, feeding
// a FaultManager that the RT loop polls once per tick.
//
// Kind mirrors the teacher's closed EventType enum (event/type.go) rather
// than an open/registered fault taxonomy — the failure modes are fixed by
// spec.md §4.5, not plugin-extensible.
package fault

// Kind enumerates the closed set of fault conditions spec.md §4.5 names.
// Values here are source-compatible with safety.State.FaultKindValue
// (both are just the underlying int).
type Kind int

const (
	UsbStall Kind = iota
	EncoderNaN
	ThermalLimit
	PluginOverrun
	TimingViolation
	Overcurrent
	HandsOffTimeout
	SafetyInterlockViolation
)

func (k Kind) String() string {
	switch k {
	case UsbStall:
		return "UsbStall"
	case EncoderNaN:
		return "EncoderNaN"
	case ThermalLimit:
		return "ThermalLimit"
	case PluginOverrun:
		return "PluginOverrun"
	case TimingViolation:
		return "TimingViolation"
	case Overcurrent:
		return "Overcurrent"
	case HandsOffTimeout:
		return "HandsOffTimeout"
	case SafetyInterlockViolation:
		return "SafetyInterlockViolation"
	default:
		return "Unknown"
	}
}

// Severity classifies how urgently a fault should surface to a human
// watching the non-RT diagnostic log, independent of how the safety state
// machine reacts to it (supplemented per
// original_source/crates/engine/src/metrics.rs's HealthSeverity, dropped
// from spec.md's distillation).
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// DefaultSeverity maps each fault kind to its baseline severity. UsbStall,
// EncoderNaN, Overcurrent, and HandsOffTimeout are immediately dangerous
// to torque fidelity or driver safety (Critical); ThermalLimit and
// TimingViolation degrade gracefully and are Warnings; PluginOverrun only
// quarantines a third-party node, never torque output itself, so it is
// Info; SafetyInterlockViolation here reports a clamp/saturation event
// (spec.md §4.6 step 6) rather than a protocol-level interlock failure, so
// it is a Warning, not Critical (see DESIGN.md).
func DefaultSeverity(k Kind) Severity {
	switch k {
	case UsbStall, EncoderNaN, Overcurrent, HandsOffTimeout:
		return SeverityCritical
	case ThermalLimit, TimingViolation, SafetyInterlockViolation:
		return SeverityWarning
	case PluginOverrun:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}
