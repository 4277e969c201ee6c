// Package safety implements the safety state machine of spec.md §4.4 (C4):
// torque ceiling arbitration, interlock handling, and fault soft-stop
// ramping.
//
// State is modeled as a closed tagged struct rather than an interface
// hierarchy, following spec.md §9's explicit guidance and the teacher's
// event.GameEvent{Type, Payload} shape (event/type.go) — a switch over Kind
// is cheaper and clearer on a hot path than dynamic dispatch through an
// interface.
package safety

// Kind enumerates the closed set of safety states.
type Kind int

const (
	Initializing Kind = iota
	SafeTorque
	ChallengingHighTorque
	HighTorque
	Faulted
)

func (k Kind) String() string {
	switch k {
	case Initializing:
		return "Initializing"
	case SafeTorque:
		return "SafeTorque"
	case ChallengingHighTorque:
		return "ChallengingHighTorque"
	case HighTorque:
		return "HighTorque"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// State is the tagged-variant value: Kind selects which of the remaining
// fields, if any, is meaningful. Copied by value on every read (spec.md
// §4.4 "read without locking" — State is small and trivially copyable).
type State struct {
	Kind Kind

	// FaultKindValue identifies which fault caused entry into Faulted.
	// Only meaningful when Kind == Faulted. int, not an import of
	// fault.Kind, to avoid a safety<->fault import cycle: fault.Manager
	// reports into safety.Service using this same numeric space
	// (fault.Kind's underlying type), and fault.Kind values are
	// documented in fault/kind.go as being source-compatible with this
	// field.
	FaultKindValue int

	// EnteredAtNS is the monotonic timestamp (Frame.TSMonoNS convention)
	// at which this state was entered (for Faulted, the time of the first
	// fault of the episode). Service keeps its own timestamps for the
	// fault dwell-time and soft-stop ramp computations and does not read
	// this field.
	EnteredAtNS uint64
}
