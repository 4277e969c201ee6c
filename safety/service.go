package safety

// Limits configures the torque ceilings and timing constants used by the
// state machine. Supplied by the caller rather than parsed from a file —
// profile/config format is an explicit Non-goal (spec.md §1) — with
// defaults taken from original_source where spec.md §9 leaves the
// concrete numbers open.
type Limits struct {
	SafeTorqueMaxNm float32
	HighTorqueMaxNm float32

	// SoftStopDurationNS is the time, from fault entry, over which the
	// torque ceiling multiplier ramps from 1.0 to 0.0 (spec.md §4.4:
	// "within 50ms of fault").
	SoftStopDurationNS uint64

	// FaultClearMinDwellNS is the minimum time the ramp must have sat at
	// 0 before a FaultCleared event is honored.
	FaultClearMinDwellNS uint64

	// ComboHoldNS is how long the high-torque challenge combo must be
	// held before the ceiling elevates.
	ComboHoldNS uint64

	// HandsOffTimeoutNS is how long, once in HighTorque, hands_off must be
	// continuously observed before the state machine reports
	// HandsOffTimeout and faults (spec.md §4.4 state diagram: "HighTorque
	// --hands_off for >= hands_off_timeout--> Faulted{HandsOffTimeout}").
	HandsOffTimeoutNS uint64
}

// DefaultLimits resolves spec.md §9's open question using the
// original_source reference implementation's constants (50ms soft-stop,
// 2s combo hold).
func DefaultLimits() Limits {
	return Limits{
		SafeTorqueMaxNm:      3.0,
		HighTorqueMaxNm:      15.0,
		SoftStopDurationNS:   50_000_000,
		FaultClearMinDwellNS: 100_000_000,
		ComboHoldNS:          2_000_000_000,
		HandsOffTimeoutNS:    500_000_000,
	}
}

// EventKind enumerates the closed set of inputs the state machine reacts
// to, mirroring the teacher's tagged-event approach (event/type.go).
type EventKind int

const (
	EventHandsOn EventKind = iota
	EventHandsOff
	EventChallengeStart
	EventChallengeHeld
	EventFaultDetected
	EventFaultCleared
)

// Event is the input to Service.Handle. Like State, a plain tagged
// struct — no RT-path allocation, no interface dispatch.
type Event struct {
	Kind           EventKind
	FaultKindValue int
	NowNS          uint64
}

// Service holds the current safety state. It is owned exclusively by the
// RT thread (rtloop.Loop.RunTick calls Handle and the ceiling/ramp
// queries once per tick) — spec.md §4.6 drains the command ring into
// Events at a fixed point in the tick, so no synchronization is needed
// here at all.
type Service struct {
	limits Limits
	state  State
	handsOn bool

	challengeStartNS uint64

	rampFloor       float32 // 1.0 == full ceiling, 0.0 == fully ramped down
	faultEnteredNS  uint64
	faultZeroSinceNS uint64
	zeroReached     bool

	// preFaultCeiling is the Nm ceiling that was in effect the instant
	// before the current Faulted episode began — the value
	// SoftStopCurrent's multiplier decays away from (spec.md §4.4: soft
	// stop ramps the ceiling from its current value to 0, it does not
	// snap to 0 on fault entry).
	preFaultCeiling float32

	// handsOffSinceNS tracks when the current unbroken hands-off streak
	// began while in HighTorque; handsOffTracking is false when hands are
	// on or the state isn't HighTorque. Drives NoteHighTorqueHandsOff.
	handsOffSinceNS  uint64
	handsOffTracking bool
}

// NewService constructs a Service starting in Initializing.
func NewService(limits Limits) *Service {
	return &Service{limits: limits, state: State{Kind: Initializing}}
}

// CurrentState returns the current state by value.
func (s *Service) CurrentState() State { return s.state }

func (s *Service) transitionTo(kind Kind, faultKind int, nowNS uint64) {
	s.state = State{Kind: kind, FaultKindValue: faultKind, EnteredAtNS: nowNS}
}

// Handle advances the state machine in response to ev. Called once per
// drained command per tick from the RT loop (spec.md §4.6 step 2/3).
func (s *Service) Handle(ev Event) {
	if s.state.Kind == Initializing {
		s.transitionTo(SafeTorque, 0, ev.NowNS)
	}

	switch ev.Kind {
	case EventHandsOn:
		s.handsOn = true
	case EventHandsOff:
		s.handsOn = false
		if s.state.Kind == HighTorque || s.state.Kind == ChallengingHighTorque {
			s.transitionTo(SafeTorque, 0, ev.NowNS)
		}
	case EventChallengeStart:
		if s.state.Kind == SafeTorque && s.handsOn {
			s.challengeStartNS = ev.NowNS
			s.transitionTo(ChallengingHighTorque, 0, ev.NowNS)
		}
	case EventChallengeHeld:
		if s.state.Kind == ChallengingHighTorque && s.handsOn {
			if ev.NowNS-s.challengeStartNS >= s.limits.ComboHoldNS {
				s.transitionTo(HighTorque, 0, ev.NowNS)
			}
		} else {
			// Combo released or hands came off mid-challenge: abort back
			// to SafeTorque rather than lingering in a half-armed state.
			if s.state.Kind == ChallengingHighTorque {
				s.transitionTo(SafeTorque, 0, ev.NowNS)
			}
		}
	case EventFaultDetected:
		if s.state.Kind != Faulted {
			s.faultEnteredNS = ev.NowNS
			s.rampFloor = 1.0
			s.zeroReached = false
			s.preFaultCeiling = s.ceilingForState(s.state.Kind, s.handsOn)
		}
		// Re-entry while already Faulted: never restart or raise the
		// ramp (spec.md §4.4 "never rises even across re-entry").
		s.transitionTo(Faulted, ev.FaultKindValue, s.faultEnteredNS)
	case EventFaultCleared:
		if s.state.Kind == Faulted && s.zeroReached &&
			ev.NowNS-s.faultZeroSinceNS >= s.limits.FaultClearMinDwellNS {
			s.transitionTo(SafeTorque, 0, ev.NowNS)
			s.handsOn = false
		}
	}
}

// MaxTorqueCeiling returns the torque ceiling in Nm for the current
// state, honoring the hands-on requirement for high torque (spec.md
// §4.4). While Faulted it returns the ceiling that was active the instant
// before the fault tripped, not 0 — SoftStopCurrent's ramp multiplier is
// what carries the ceiling down to 0 over SoftStopDurationNS, so the two
// must be multiplied together by the caller rather than either alone
// already being 0 at fault entry.
func (s *Service) MaxTorqueCeiling(handsOn bool) float32 {
	if s.state.Kind == Faulted {
		return s.preFaultCeiling
	}
	return s.ceilingForState(s.state.Kind, handsOn)
}

func (s *Service) ceilingForState(kind Kind, handsOn bool) float32 {
	switch kind {
	case HighTorque:
		if handsOn {
			return s.limits.HighTorqueMaxNm
		}
		return s.limits.SafeTorqueMaxNm
	case Initializing:
		return 0
	default:
		return s.limits.SafeTorqueMaxNm
	}
}

// NoteHighTorqueHandsOff tracks the per-tick hands-off sensor reading while
// in HighTorque and reports true the instant an unbroken hands-off streak
// reaches HandsOffTimeoutNS (spec.md §4.4 state diagram: "HighTorque
// --hands_off for >= hands_off_timeout--> Faulted{HandsOffTimeout}"). The
// caller is responsible for feeding the true result into Handle as an
// EventFaultDetected — this method only observes and reports, it never
// transitions state itself, so fault.Kind stays out of this package (see
// DESIGN.md).
//
// This is independent of EventHandsOn/EventHandsOff, which track the
// driver's explicit combo/engagement commands rather than the raw per-tick
// sensor flag.
func (s *Service) NoteHighTorqueHandsOff(handsOff bool, nowNS uint64) bool {
	if s.state.Kind != HighTorque || !handsOff {
		s.handsOffTracking = false
		return false
	}
	if !s.handsOffTracking {
		s.handsOffTracking = true
		s.handsOffSinceNS = nowNS
		return false
	}
	return nowNS-s.handsOffSinceNS >= s.limits.HandsOffTimeoutNS
}

// SoftStopCurrent advances and returns the current soft-stop ceiling
// multiplier (1.0 at fault entry, ramping monotonically to 0.0 over
// SoftStopDurationNS, never rising again — not even on fault re-entry)
// for nowNS. Returns 1.0 (no attenuation) outside of Faulted.
func (s *Service) SoftStopCurrent(nowNS uint64) float32 {
	if s.state.Kind != Faulted {
		return 1.0
	}

	dur := s.limits.SoftStopDurationNS
	if dur == 0 {
		dur = 1
	}
	elapsed := nowNS - s.faultEnteredNS
	next := float32(1.0)
	if elapsed >= dur {
		next = 0
	} else {
		next = 1.0 - float32(elapsed)/float32(dur)
	}

	// Monotonic: never let the ramp rise, whatever nowNS does.
	if next > s.rampFloor {
		next = s.rampFloor
	} else {
		s.rampFloor = next
	}

	if next <= 0 && !s.zeroReached {
		s.zeroReached = true
		s.faultZeroSinceNS = nowNS
	}

	return next
}
