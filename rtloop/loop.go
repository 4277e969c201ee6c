// Package rtloop implements the 1 kHz real-time tick (spec.md §4.6, C6):
// the eleven-step sequence that turns one drained game-input sample into
// one HID torque write, with safety/fault arbitration and bounded
// diagnostic recording in between.
//
// Grounded on engine.ClockScheduler.processTick's staged structure (time
// sync -> settle -> state-machine update -> telemetry -> settle -> system
// execution), flattened into spec.md's mandated tick order since the RT
// loop has no FSM or event-settling phases of its own — those concerns
// are replaced here by draining the bounded command/game-input rings.
package rtloop

import (
	"time"

	"github.com/openracing/ffbengine/blackbox"
	"github.com/openracing/ffbengine/counters"
	"github.com/openracing/ffbengine/device"
	"github.com/openracing/ffbengine/fault"
	"github.com/openracing/ffbengine/pipeline"
	"github.com/openracing/ffbengine/safety"
	"github.com/openracing/ffbengine/scheduler"
)

// telemetryDecimation samples stream-B telemetry at roughly 1/16th of
// the 1kHz tick rate (~60Hz), matching spec.md §4.9's lower-rate
// telemetry stream without a second timer.
const telemetryDecimation = 16

// Loop owns every per-tick collaborator and is driven by
// scheduler.AbsoluteScheduler.Run. It is constructed once by
// orchestrator.Engine and never shared outside the RT thread.
type Loop struct {
	Clock scheduler.TimeProvider

	Pipeline *pipeline.Pipeline
	Safety   *safety.Service
	Faults   *fault.Manager
	Counters *counters.AtomicCounters
	Blackbox *blackbox.Writer // nil disables recording
	Device   device.Device

	GameInput interface {
		TryRecv() (device.GameInput, bool)
	}
	Commands interface {
		TryPop() (device.Command, bool)
	}

	ProcessingTimeNS interface {
		TryPush(int64) bool
	}

	lastInput    device.GameInput
	haveInput    bool
	shutdown     bool
	tickInterval time.Duration
}

// NewLoop wires loop with its fixed tick interval, used as the pipeline's
// per-tick dt in step 4.
func NewLoop(tickInterval time.Duration) *Loop {
	return &Loop{tickInterval: tickInterval, Clock: scheduler.MonotonicTimeProvider{}}
}

// ShouldStop reports whether a CommandShutdown was processed.
func (l *Loop) ShouldStop() bool { return l.shutdown }

// RunTick executes one 1kHz tick. Suitable as the onTick callback passed
// to scheduler.AbsoluteScheduler.Run. Must never allocate on its steady
// state path and must never panic — every fallible step reports through
// a counter or a fault instead (spec.md §4.6/§7).
func (l *Loop) RunTick(nowNS uint64, seq uint64) {
	start := l.Clock.Now()

	// 1. Drain the command ring (bounded, drop-on-full upstream) and
	// apply at most the commands queued since the last tick.
	hadShutdown := l.drainCommands(nowNS)

	// 2. Drain the overwrite-oldest game-input ring down to empty: only
	// the newest sample matters (spec.md §4.7).
	for {
		in, ok := l.GameInput.TryRecv()
		if !ok {
			break
		}
		l.lastInput = in
		l.haveInput = true
	}

	// 3. Build this tick's working Frame from the latest input.
	frame := pipeline.Frame{Seq: uint16(seq), TSMonoNS: nowNS}
	if l.haveInput {
		frame.FFBIn = l.lastInput.FFBScalar
		if l.lastInput.Telemetry != nil {
			frame.WheelSpeed = l.lastInput.Telemetry.WheelSpeed
		}
	}

	// 4. Run the filter pipeline + curve mapping.
	badNodes := 0
	if l.Pipeline != nil {
		badNodes = l.Pipeline.Process(&frame, float32(l.tickInterval.Seconds()))
	}

	// 5. Arbitrate against the safety ceiling and soft-stop ramp.
	handsOn := !frame.HandsOff
	ceiling := float32(1)
	if l.Safety != nil {
		ceiling = l.Safety.MaxTorqueCeiling(handsOn) * l.Safety.SoftStopCurrent(nowNS)
	}
	preClampTorque := frame.TorqueOut
	if frame.TorqueOut > ceiling {
		frame.TorqueOut = ceiling
	} else if frame.TorqueOut < -ceiling {
		frame.TorqueOut = -ceiling
	}
	saturated := frame.TorqueOut != preClampTorque

	// 6. Write the torque command to the HID device.
	var hidErr error
	if l.Device != nil {
		hidErr = l.Device.WriteFFBReport(frame.TorqueOut, frame.Seq)
	}

	// 7. Run fault detection against this tick's observations.
	processingSoFar := l.Clock.Now().Sub(start)
	var newFaults []fault.Kind
	if l.Faults != nil {
		newFaults = l.Faults.Update(fault.Input{
			NowNS:            nowNS,
			HidWriteOK:       hidErr == nil,
			TelemetryIsBad:   l.haveInput && l.lastInput.Telemetry == nil,
			DeviceTempC:      telemetryTempC(l.lastInput),
			ProcessingTimeNS: uint64(processingSoFar.Nanoseconds()),
			Overcurrent:      telemetryOvercurrent(l.lastInput),
		})
	}

	// 7b. Two more fault conditions live outside fault.Manager because
	// they depend on safety-state/RT-loop context rather than an
	// independent per-tick signal (spec.md §4.4 state diagram and §4.6
	// step 6): sustained hands-off while in HighTorque, and this tick's
	// clamp having saturated against the ceiling.
	if l.Safety != nil && l.Safety.NoteHighTorqueHandsOff(frame.HandsOff, nowNS) {
		newFaults = append(newFaults, fault.HandsOffTimeout)
	}
	if saturated {
		newFaults = append(newFaults, fault.SafetyInterlockViolation)
	}

	// 8. Feed this tick's detected faults into the safety state machine.
	// PluginOverrun and SafetyInterlockViolation are carved out: a plugin
	// overrun quarantines the offending plugin rather than tripping
	// soft-stop (spec.md §4.5), and a clamp saturation is the interlock
	// doing its job, not a fault in the interlock itself — routing either
	// through Handle would trip Faulted on routine conditions (a hard
	// correction saturating torque, one slow plugin) rather than on an
	// actual malfunction. Both are still recorded below for diagnostics.
	if l.Safety != nil {
		for _, fk := range newFaults {
			if fk == fault.PluginOverrun || fk == fault.SafetyInterlockViolation {
				continue
			}
			l.Safety.Handle(safety.Event{Kind: safety.EventFaultDetected, FaultKindValue: int(fk), NowNS: nowNS})
		}
	}

	// 9. Update counters: ticks, saturation, HID errors, and pipeline node
	// outputs replaced for being non-finite (counted in
	// PipelineTimingViolations). No processing-budget check is made here;
	// processing time reaches fault.Manager's TimingViolation rule in step 7.
	if l.Counters != nil {
		l.Counters.Ticks.Add(1)
		if hidErr != nil {
			l.Counters.HidWriteErrors.Add(1)
		}
		if saturated {
			l.Counters.TorqueSaturationCount.Add(1)
		}
		l.Counters.TorqueSaturationSamples.Add(1)
		if len(newFaults) > 0 {
			l.Counters.SafetyEvents.Add(uint64(len(newFaults)))
		}
		if badNodes > 0 {
			l.Counters.PipelineTimingViolations.Add(uint64(badNodes))
		}
	}

	// 10. Push the processing-time sample for the non-RT histogram
	// collector.
	elapsed := l.Clock.Now().Sub(start)
	if l.ProcessingTimeNS != nil {
		l.ProcessingTimeNS.TryPush(elapsed.Nanoseconds())
	}

	// 11. Record this tick to the blackbox stream (drop-on-full; never
	// blocks).
	if l.Blackbox != nil {
		var safetyKind safety.Kind
		if l.Safety != nil {
			safetyKind = l.Safety.CurrentState().Kind
		}
		l.Blackbox.PushFrame(blackbox.Frame{
			Seq:              frame.Seq,
			TSMonoNS:         frame.TSMonoNS,
			FFBIn:            frame.FFBIn,
			TorqueOut:        frame.TorqueOut,
			WheelSpeed:       frame.WheelSpeed,
			HandsOff:         frame.HandsOff,
			SafetyState:      safetyKind,
			ProcessingTimeNS: uint32(elapsed.Nanoseconds()),
		})
		if seq%telemetryDecimation == 0 {
			l.Blackbox.PushTelemetry(blackbox.TelemetrySample{TSMonoNS: nowNS, WheelSpeed: frame.WheelSpeed})
		}
		for _, fk := range newFaults {
			l.Blackbox.PushHealth(blackbox.HealthRecord{AtNS: nowNS, Kind: int32(fk), Severity: int32(fault.DefaultSeverity(fk))})
		}
	}

	if hadShutdown {
		l.shutdown = true
	}
}

func (l *Loop) drainCommands(nowNS uint64) (shutdown bool) {
	if l.Commands == nil {
		return false
	}
	for {
		cmd, ok := l.Commands.TryPop()
		if !ok {
			return shutdown
		}
		switch cmd.Kind {
		case device.CommandApplyPipeline:
			accepted := cmd.Pipeline != nil
			reason := ""
			if accepted && l.Pipeline != nil {
				l.Pipeline.SwapAt(cmd.Pipeline)
			} else if !accepted {
				reason = "nil pipeline config"
			}
			if cmd.Reply != nil {
				select {
				case cmd.Reply <- device.ApplyPipelineResult{Accepted: accepted, Reason: reason}:
				default:
				}
			}
		case device.CommandUpdateSafety:
			if l.Safety != nil {
				kind := safety.EventHandsOff
				if cmd.HandsOn {
					kind = safety.EventHandsOn
				}
				l.Safety.Handle(safety.Event{Kind: kind, NowNS: nowNS})
			}
		case device.CommandShutdown:
			shutdown = true
		}
	}
}

func telemetryTempC(in device.GameInput) float32 {
	if in.Telemetry == nil {
		return 0
	}
	return in.Telemetry.DeviceTempC
}

func telemetryOvercurrent(in device.GameInput) bool {
	if in.Telemetry == nil {
		return false
	}
	return in.Telemetry.Overcurrent
}
