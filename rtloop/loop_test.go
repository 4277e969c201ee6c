package rtloop

import (
	"testing"
	"time"

	"github.com/openracing/ffbengine/counters"
	"github.com/openracing/ffbengine/device"
	"github.com/openracing/ffbengine/fault"
	"github.com/openracing/ffbengine/pipeline"
	"github.com/openracing/ffbengine/ringqueue"
	"github.com/openracing/ffbengine/safety"
)

type mockDevice struct {
	writes []float32
	err    error
}

func (d *mockDevice) WriteFFBReport(torqueNm float32, seq uint16) error {
	d.writes = append(d.writes, torqueNm)
	return d.err
}

func newTestLoop(t *testing.T) (*Loop, *ringqueue.OverwriteSPSC[device.GameInput], *ringqueue.SPSC[device.Command], *mockDevice) {
	t.Helper()
	cfg, err := pipeline.NewConfig(nil, nil, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	l := NewLoop(time.Millisecond)
	l.Pipeline = pipeline.New(cfg)
	l.Safety = safety.NewService(safety.DefaultLimits())
	l.Faults = fault.NewManager(fault.DefaultThresholds())
	l.Counters = &counters.AtomicCounters{}

	inputRing := ringqueue.NewOverwriteSPSC[device.GameInput](16)
	cmdRing := ringqueue.NewSPSC[device.Command](16)
	dev := &mockDevice{}

	l.GameInput = inputRing
	l.Commands = cmdRing
	l.Device = dev

	return l, inputRing, cmdRing, dev
}

func TestRunTickWritesPassThroughTorque(t *testing.T) {
	l, inputRing, _, dev := newTestLoop(t)

	inputRing.Push(device.GameInput{FFBScalar: 0.3, TSMonoNS: 0})
	l.Safety.Handle(safety.Event{Kind: safety.EventHandsOn, NowNS: 0})

	l.RunTick(1_000_000, 0)

	if len(dev.writes) != 1 {
		t.Fatalf("expected exactly one HID write, got %d", len(dev.writes))
	}
	if dev.writes[0] <= 0 {
		t.Fatalf("torque written = %v, want positive", dev.writes[0])
	}
}

func TestRunTickHoldsLastGameInputAcrossTicks(t *testing.T) {
	l, inputRing, _, dev := newTestLoop(t)
	l.Safety.Handle(safety.Event{Kind: safety.EventHandsOn, NowNS: 0})

	inputRing.Push(device.GameInput{FFBScalar: 0.2})
	l.RunTick(1_000_000, 0)
	l.RunTick(2_000_000, 1) // no new input pushed: should hold 0.2

	if dev.writes[1] <= 0 {
		t.Fatalf("expected held torque from previous sample, got %v", dev.writes[1])
	}
}

// S4 (spec.md §8, §4.4): the soft-stop ceiling ramps from its pre-fault
// value down to 0 over SoftStopDurationNS — it must not snap to 0 the
// instant the fault trips, or there is nothing left for the ramp to decay.
func TestRunTickSoftStopRampsCeilingFromPreFaultValue(t *testing.T) {
	l, inputRing, _, dev := newTestLoop(t)
	l.Safety.Handle(safety.Event{Kind: safety.EventFaultDetected, NowNS: 0})

	inputRing.Push(device.GameInput{FFBScalar: 1.0})
	l.RunTick(0, 0)
	if dev.writes[0] == 0 {
		t.Fatalf("torque at fault entry = 0, want clamped to the nonzero pre-fault ceiling")
	}

	limits := safety.DefaultLimits()
	inputRing.Push(device.GameInput{FFBScalar: 1.0})
	l.RunTick(limits.SoftStopDurationNS, 1)
	if dev.writes[1] != 0 {
		t.Fatalf("torque after full soft-stop ramp = %v, want 0", dev.writes[1])
	}
}

func TestRunTickShutdownCommandSetsFlag(t *testing.T) {
	l, _, cmdRing, _ := newTestLoop(t)
	cmdRing.TryPush(device.Command{Kind: device.CommandShutdown})

	l.RunTick(0, 0)
	if !l.ShouldStop() {
		t.Fatalf("expected ShouldStop() to be true after CommandShutdown")
	}
}

func TestRunTickApplyPipelineRepliesAccepted(t *testing.T) {
	l, _, cmdRing, _ := newTestLoop(t)
	newCfg, err := pipeline.NewConfig(nil, nil, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	reply := make(chan device.ApplyPipelineResult, 1)
	cmdRing.TryPush(device.Command{Kind: device.CommandApplyPipeline, Pipeline: newCfg, Reply: reply})

	l.RunTick(0, 0)

	select {
	case res := <-reply:
		if !res.Accepted {
			t.Fatalf("expected acceptance, got reason %q", res.Reason)
		}
	default:
		t.Fatal("expected a reply on the channel")
	}
}

// S6 (spec.md §8, §4.5): a plugin overrun must not trip the main safety
// state machine — only the offending plugin is meant to be quarantined.
// RunTick has no plugin-timing input, so this drives Faults.Update
// directly, past the default overrun count (the 13th report within the
// window trips PluginOverrun), and applies step 8's PluginOverrun filter.
func TestRunTickPluginOverrunLeavesSafetyStateUnaffected(t *testing.T) {
	l, _, _, _ := newTestLoop(t)
	l.Safety.Handle(safety.Event{Kind: safety.EventHandsOn, NowNS: 0})
	before := l.Safety.CurrentState().Kind

	l.Faults = fault.NewManager(fault.DefaultThresholds())
	for i := 0; i < 20; i++ {
		nowNS := uint64(i) * uint64(time.Millisecond)
		l.lastInput = device.GameInput{}
		faults := l.Faults.Update(fault.Input{
			NowNS:         nowNS,
			HidWriteOK:    true,
			HadPluginCall: true,
			PluginTimeNS:  fault.DefaultThresholds().PluginOverrunThresholdNS + 1,
		})
		for _, fk := range faults {
			if fk == fault.PluginOverrun {
				continue
			}
			l.Safety.Handle(safety.Event{Kind: safety.EventFaultDetected, FaultKindValue: int(fk), NowNS: nowNS})
		}
	}

	if l.Safety.CurrentState().Kind != before {
		t.Fatalf("safety state changed to %v after plugin overruns, want unchanged %v", l.Safety.CurrentState().Kind, before)
	}
}

// spec.md §4.4 state diagram: sustained hands-off while in HighTorque
// faults with HandsOffTimeout.
func TestRunTickHandsOffTimeoutTripsFaultedFromHighTorque(t *testing.T) {
	l, inputRing, _, _ := newTestLoop(t)
	l.Safety.Handle(safety.Event{Kind: safety.EventHandsOn, NowNS: 0})
	l.Safety.Handle(safety.Event{Kind: safety.EventChallengeStart, NowNS: 0})
	l.Safety.Handle(safety.Event{Kind: safety.EventChallengeHeld, NowNS: 2_100_000_000})
	if l.Safety.CurrentState().Kind != safety.HighTorque {
		t.Fatalf("setup failed: state = %v, want HighTorque", l.Safety.CurrentState().Kind)
	}

	limits := safety.DefaultLimits()
	inputRing.Push(device.GameInput{FFBScalar: 0.1})
	l.RunTick(2_100_000_000, 0) // HandsOff defaults false on a fresh Frame

	// Drive a raw hands-off sensor reading (frame.HandsOff) continuously
	// past the timeout. The pipeline's default config never sets
	// frame.HandsOff itself, so RunTick alone can't exercise this; call
	// the Safety method directly the same way RunTick's step 7b does.
	nowNS := uint64(2_100_000_000)
	tripped := false
	for i := uint64(0); i <= limits.HandsOffTimeoutNS; i += uint64(time.Millisecond) {
		if l.Safety.NoteHighTorqueHandsOff(true, nowNS+i) {
			l.Safety.Handle(safety.Event{Kind: safety.EventFaultDetected, FaultKindValue: int(fault.HandsOffTimeout), NowNS: nowNS + i})
			tripped = true
			break
		}
	}

	if !tripped {
		t.Fatalf("expected HandsOffTimeout to trip within %dns of sustained hands-off", limits.HandsOffTimeoutNS)
	}
	if l.Safety.CurrentState().Kind != safety.Faulted {
		t.Fatalf("state after HandsOffTimeout = %v, want Faulted", l.Safety.CurrentState().Kind)
	}
}

func TestRunTickCountsTicks(t *testing.T) {
	l, _, _, _ := newTestLoop(t)
	l.RunTick(0, 0)
	l.RunTick(1_000_000, 1)
	if got := l.Counters.Peek().Ticks; got != 2 {
		t.Fatalf("Ticks = %d, want 2", got)
	}
}
