package safety

import "testing"

func TestInitializingBootsIntoSafeTorque(t *testing.T) {
	s := NewService(DefaultLimits())
	s.Handle(Event{Kind: EventHandsOn, NowNS: 0})
	if s.CurrentState().Kind != SafeTorque {
		t.Fatalf("state = %v, want SafeTorque", s.CurrentState().Kind)
	}
}

func TestHighTorqueRequiresChallengeAndHandsOn(t *testing.T) {
	s := NewService(DefaultLimits())
	s.Handle(Event{Kind: EventHandsOn, NowNS: 0})
	s.Handle(Event{Kind: EventChallengeStart, NowNS: 0})
	if s.CurrentState().Kind != ChallengingHighTorque {
		t.Fatalf("state = %v, want ChallengingHighTorque", s.CurrentState().Kind)
	}

	s.Handle(Event{Kind: EventChallengeHeld, NowNS: 1_000_000_000})
	if s.CurrentState().Kind != ChallengingHighTorque {
		t.Fatalf("combo held too briefly, but state = %v", s.CurrentState().Kind)
	}

	s.Handle(Event{Kind: EventChallengeHeld, NowNS: 2_100_000_000})
	if s.CurrentState().Kind != HighTorque {
		t.Fatalf("state = %v, want HighTorque after full combo hold", s.CurrentState().Kind)
	}

	if ceil := s.MaxTorqueCeiling(true); ceil != DefaultLimits().HighTorqueMaxNm {
		t.Errorf("ceiling with hands on = %v, want %v", ceil, DefaultLimits().HighTorqueMaxNm)
	}
	if ceil := s.MaxTorqueCeiling(false); ceil != DefaultLimits().SafeTorqueMaxNm {
		t.Errorf("ceiling with hands off = %v, want safe torque max", ceil)
	}
}

func TestHandsOffDropsOutOfHighTorque(t *testing.T) {
	s := NewService(DefaultLimits())
	s.Handle(Event{Kind: EventHandsOn, NowNS: 0})
	s.Handle(Event{Kind: EventChallengeStart, NowNS: 0})
	s.Handle(Event{Kind: EventChallengeHeld, NowNS: 2_100_000_000})
	if s.CurrentState().Kind != HighTorque {
		t.Fatalf("setup failed: state = %v", s.CurrentState().Kind)
	}

	s.Handle(Event{Kind: EventHandsOff, NowNS: 2_200_000_000})
	if s.CurrentState().Kind != SafeTorque {
		t.Fatalf("state after hands-off = %v, want SafeTorque", s.CurrentState().Kind)
	}
}

// S4 (spec.md §8): fault at t=0 -> soft-stop ceiling multiplier reaches 0
// within 50ms and never rises again, even across re-entry.
func TestScenarioS4SoftStopRampMonotonic(t *testing.T) {
	limits := DefaultLimits()
	s := NewService(limits)
	s.Handle(Event{Kind: EventHandsOn, NowNS: 0})
	s.Handle(Event{Kind: EventFaultDetected, FaultKindValue: 7, NowNS: 0})

	prev := float32(2)
	for ns := uint64(0); ns <= limits.SoftStopDurationNS; ns += 1_000_000 {
		cur := s.SoftStopCurrent(ns)
		if cur > prev {
			t.Fatalf("ramp rose at %dns: %v > %v", ns, cur, prev)
		}
		prev = cur
	}
	if prev != 0 {
		t.Fatalf("ramp did not reach 0 within %dns: got %v", limits.SoftStopDurationNS, prev)
	}

	// Re-entry mid-ramp must not push the ceiling back up.
	s2 := NewService(limits)
	s2.Handle(Event{Kind: EventFaultDetected, FaultKindValue: 1, NowNS: 0})
	mid := s2.SoftStopCurrent(limits.SoftStopDurationNS / 2)
	s2.Handle(Event{Kind: EventFaultDetected, FaultKindValue: 2, NowNS: limits.SoftStopDurationNS / 2})
	afterReentry := s2.SoftStopCurrent(limits.SoftStopDurationNS / 2)
	if afterReentry > mid {
		t.Fatalf("fault re-entry raised the ramp: %v > %v", afterReentry, mid)
	}
}

func TestFaultClearedRequiresMinDwellAtZero(t *testing.T) {
	limits := DefaultLimits()
	s := NewService(limits)
	s.Handle(Event{Kind: EventFaultDetected, NowNS: 0})

	s.SoftStopCurrent(limits.SoftStopDurationNS) // reach zero, mark zeroReached

	s.Handle(Event{Kind: EventFaultCleared, NowNS: limits.SoftStopDurationNS + 1})
	if s.CurrentState().Kind != Faulted {
		t.Fatalf("fault cleared before min dwell elapsed, state = %v", s.CurrentState().Kind)
	}

	s.Handle(Event{Kind: EventFaultCleared, NowNS: limits.SoftStopDurationNS + limits.FaultClearMinDwellNS + 1})
	if s.CurrentState().Kind != SafeTorque {
		t.Fatalf("state after valid clear = %v, want SafeTorque", s.CurrentState().Kind)
	}
}

func TestFaultedCeilingHoldsPreFaultValueForRampToDecay(t *testing.T) {
	limits := DefaultLimits()
	s := NewService(limits)
	s.Handle(Event{Kind: EventHandsOn, NowNS: 0})
	s.Handle(Event{Kind: EventFaultDetected, NowNS: 0})

	if ceil := s.MaxTorqueCeiling(true); ceil != limits.SafeTorqueMaxNm {
		t.Errorf("ceiling immediately after fault entry = %v, want pre-fault ceiling %v", ceil, limits.SafeTorqueMaxNm)
	}
}

// TestScenarioS4CombinedCeilingRampsToZero exercises the product
// rtloop.Loop.RunTick actually computes — MaxTorqueCeiling *
// SoftStopCurrent — rather than either factor in isolation. spec.md §8's
// S4 requires the combined multiplier be ~1.0 at fault entry (t=0) and
// <=0.01 of the pre-fault ceiling by t=50ms, i.e. the ceiling must decay
// from its pre-fault value, not already be 0 the instant the fault trips.
func TestScenarioS4CombinedCeilingRampsToZero(t *testing.T) {
	limits := DefaultLimits()
	s := NewService(limits)
	s.Handle(Event{Kind: EventHandsOn, NowNS: 0})
	s.Handle(Event{Kind: EventFaultDetected, FaultKindValue: 7, NowNS: 0})

	entryCeiling := s.MaxTorqueCeiling(true) * s.SoftStopCurrent(0)
	if entryCeiling != limits.SafeTorqueMaxNm {
		t.Fatalf("combined ceiling at fault entry = %v, want %v", entryCeiling, limits.SafeTorqueMaxNm)
	}

	rampedCeiling := s.MaxTorqueCeiling(true) * s.SoftStopCurrent(limits.SoftStopDurationNS)
	if rampedCeiling > 0.01*limits.SafeTorqueMaxNm {
		t.Fatalf("combined ceiling at t=SoftStopDurationNS = %v, want <= 1%% of %v", rampedCeiling, limits.SafeTorqueMaxNm)
	}
}
