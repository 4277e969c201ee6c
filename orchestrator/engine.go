// Package orchestrator implements the engine lifecycle and composition
// root of spec.md §4.10 (C10): it owns the RT thread, the diagnostic
// thread, and the public command/query surface external callers use.
//
// Grounded on engine.Game's thread-handle ownership and
// status.Registry-as-shared-handle pattern, and on
// original_source/crates/engine/src/engine.rs's Engine/EngineCommand/
// EngineConfig naming for the request/response command surface
// (translated to idiomatic Go channels, not an async-runtime/oneshot
// analog).
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/openracing/ffbengine/blackbox"
	"github.com/openracing/ffbengine/core"
	"github.com/openracing/ffbengine/counters"
	"github.com/openracing/ffbengine/device"
	"github.com/openracing/ffbengine/fault"
	"github.com/openracing/ffbengine/obslog"
	"github.com/openracing/ffbengine/pipeline"
	"github.com/openracing/ffbengine/ringqueue"
	"github.com/openracing/ffbengine/rtloop"
	"github.com/openracing/ffbengine/safety"
	"github.com/openracing/ffbengine/scheduler"
	"github.com/openracing/ffbengine/status"
)

const (
	gameInputRingCapacity = 64
	commandRingCapacity   = 16
)

// Config configures a new Engine. A plain Go struct, not a parsed file
// (spec.md §1 Non-goal: profile/config file format).
type Config struct {
	Device       device.Device
	TickInterval time.Duration

	SafetyLimits    safety.Limits
	FaultThresholds fault.Thresholds
	InitialPipeline *pipeline.Config

	// BlackboxOutput, if non-nil, enables recording and is the sink the
	// blackbox.Writer appends framed records to (spec.md §4.9).
	BlackboxOutput   io.Writer
	BlackboxHeader   blackbox.Header
	BlackboxCompress bool

	Logger zerolog.Logger
}

// DefaultConfig returns a Config with engine-level defaults applied
// (spec.md §9 Open Questions; original_source constants).
func DefaultConfig(dev device.Device) Config {
	return Config{
		Device:          dev,
		TickInterval:    time.Millisecond,
		SafetyLimits:    safety.DefaultLimits(),
		FaultThresholds: fault.DefaultThresholds(),
		Logger:          obslog.Default(),
	}
}

// Stats is the pull-based snapshot surface of spec.md §6.
type Stats struct {
	Counters  counters.Snapshot
	Jitter    counters.HistogramSnapshot
	Processing counters.HistogramSnapshot
	SafetyState safety.Kind
	Ticks     uint64
	MissedTicks uint64
}

// MeetsGates reports whether stats passes all five release gates of
// spec.md §8 property 8: rt_loop_us <= 1000, jitter_p99_ms <= 0.25,
// missed_tick_rate <= 1e-5, processing_median_us <= 50, and
// processing_p99_us <= 200 (supplemented per
// original_source/crates/engine/src/benchmark_types.rs's meets_gates()).
func (s Stats) MeetsGates() bool {
	const (
		maxRTLoopNS       = 1_000_000
		maxJitterP99NS    = 250_000
		maxMissedTickRate = 1e-5
		maxProcMedianNS   = 50_000
		maxProcP99NS      = 200_000
	)

	if s.Processing.MaxNS > maxRTLoopNS {
		return false
	}
	if s.Jitter.P99NS > maxJitterP99NS {
		return false
	}
	if s.Ticks > 0 {
		rate := float64(s.MissedTicks) / float64(s.Ticks)
		if rate > maxMissedTickRate {
			return false
		}
	}
	if s.Processing.P50NS > maxProcMedianNS {
		return false
	}
	if s.Processing.P99NS > maxProcP99NS {
		return false
	}
	return true
}

// Engine owns the full running system: the RT thread (scheduler + loop),
// the diagnostic/collector thread, and the blackbox writer.
type Engine struct {
	cfg Config
	log zerolog.Logger

	scheduler *scheduler.AbsoluteScheduler
	loop      *rtloop.Loop
	faults    *fault.Manager
	safety    *safety.Service
	counters  *counters.AtomicCounters

	jitterCollector     *counters.Collector
	processingCollector *counters.Collector
	processingRing      *ringqueue.SPSC[int64]

	// countersMu guards countersTotal, the running cumulative-since-start
	// accumulation of AtomicCounters.SnapshotAndReset's disjoint windows
	// (spec.md §4.8: snapshot_and_reset "so the exporter sees disjoint
	// intervals" — GetStats needs cumulative totals, so runDiagnostics
	// folds each window into this total rather than GetStats reading the
	// live counters directly, which would race the reset).
	countersMu    sync.Mutex
	countersTotal counters.Snapshot

	gameInput *ringqueue.OverwriteSPSC[device.GameInput]
	commands  *ringqueue.SPSC[device.Command]

	blackbox *blackbox.Writer

	// diag is a free-form named-metric registry for diagnostics that
	// don't fit counters.AtomicCounters' fixed schema (e.g. the last
	// reported device temperature, arbitrary per-deployment tags). It is
	// only ever written from non-RT callers (New, UpdateSafety), never
	// from the RT thread.
	diag *status.Registry

	rtStop   chan struct{}
	diagStop chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs an Engine from cfg without starting any goroutines.
func New(cfg Config) (*Engine, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("orchestrator: Config.Device is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Millisecond
	}
	if cfg.InitialPipeline == nil {
		var err error
		cfg.InitialPipeline, err = pipeline.NewConfig(nil, nil, cfg.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: building default pipeline: %w", err)
		}
	}

	sched := scheduler.NewAbsoluteScheduler(scheduler.MonotonicTimeProvider{}, cfg.TickInterval)

	loop := rtloop.NewLoop(cfg.TickInterval)
	loop.Pipeline = pipeline.New(cfg.InitialPipeline)
	loop.Safety = safety.NewService(cfg.SafetyLimits)
	loop.Faults = fault.NewManager(cfg.FaultThresholds)
	loop.Counters = &counters.AtomicCounters{}
	loop.Device = cfg.Device

	gameInput := ringqueue.NewOverwriteSPSC[device.GameInput](gameInputRingCapacity)
	commands := ringqueue.NewSPSC[device.Command](commandRingCapacity)
	loop.GameInput = gameInput
	loop.Commands = commands

	processingRing := ringqueue.NewSPSC[int64](4096)
	loop.ProcessingTimeNS = processingRing

	var bw *blackbox.Writer
	if cfg.BlackboxOutput != nil {
		var err error
		bw, err = blackbox.NewWriter(cfg.BlackboxOutput, cfg.BlackboxHeader, cfg.BlackboxCompress)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: building blackbox writer: %w", err)
		}
	}
	loop.Blackbox = bw

	diag := status.NewRegistry()
	diag.Bools.Get("hands_on")
	diag.Floats.Get("device_temp_c")

	return &Engine{
		cfg:                 cfg,
		log:                 cfg.Logger,
		scheduler:           sched,
		loop:                loop,
		faults:              loop.Faults,
		safety:              loop.Safety,
		counters:            loop.Counters,
		jitterCollector:     counters.NewCollector(sched.JitterSamples()),
		processingCollector: counters.NewCollector(processingRing),
		processingRing:      processingRing,
		gameInput:           gameInput,
		commands:            commands,
		blackbox:            bw,
		diag:                diag,
		rtStop:              make(chan struct{}),
		diagStop:            make(chan struct{}),
	}, nil
}

// Start applies RT process setup (best-effort, never fatal) and launches
// the RT thread and the diagnostic/collector thread.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			e.log.Debug().Msgf(format, args...)
		})); err != nil {
			e.log.Warn().Err(err).Msg("automaxprocs: failed to set GOMAXPROCS, continuing with default")
		}
		if limit, err := memlimit.SetGoMemLimitWithOpts(); err != nil {
			e.log.Warn().Err(err).Msg("automemlimit: failed to set GOMEMLIMIT, continuing with default")
		} else {
			e.log.Debug().Int64("gomemlimit_bytes", limit).Msg("automemlimit: set GOMEMLIMIT from cgroup limit")
		}
		if err := scheduler.ApplyRTSetup(); err != nil {
			e.log.Warn().Err(err).Msg("rt setup: failed to raise scheduling priority, continuing at normal priority")
		}

		if e.blackbox != nil {
			e.blackbox.Start()
		}

		e.wg.Add(1)
		go e.runRT()

		e.wg.Add(1)
		core.Go(func() {
			defer e.wg.Done()
			e.runDiagnostics()
		})
	})
}

func (e *Engine) runRT() {
	defer e.wg.Done()
	var missedSeen uint64
	e.scheduler.Run(e.rtStop, func(nowNS uint64, seq uint64) {
		if m := e.scheduler.MissedTicks(); m > missedSeen {
			e.counters.MissedTicks.Add(m - missedSeen)
			missedSeen = m
		}
		e.loop.RunTick(nowNS, seq)
		if e.loop.ShouldStop() {
			select {
			case <-e.rtStop:
			default:
				close(e.rtStop)
			}
		}
	})
}

func (e *Engine) runDiagnostics() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.diagStop:
			e.jitterCollector.Drain()
			e.processingCollector.Drain()
			e.foldCounters()
			return
		case <-ticker.C:
			e.jitterCollector.Drain()
			e.processingCollector.Drain()
			e.foldCounters()
		}
	}
}

// foldCounters drains this window's counters via SnapshotAndReset and
// folds the delta into the cumulative total GetStats reports, so the RT
// thread's live counters stay a disjoint per-window snapshot (the shape
// spec.md §4.8 specifies for an exporter) while GetStats still reports
// cumulative-since-start totals (spec.md §6's total_frames/dropped_frames
// naming).
func (e *Engine) foldCounters() {
	delta := e.counters.SnapshotAndReset()
	e.countersMu.Lock()
	e.countersTotal.Ticks += delta.Ticks
	e.countersTotal.MissedTicks += delta.MissedTicks
	e.countersTotal.PipelineTimingViolations += delta.PipelineTimingViolations
	e.countersTotal.HidWriteErrors += delta.HidWriteErrors
	e.countersTotal.TorqueSaturationCount += delta.TorqueSaturationCount
	e.countersTotal.TorqueSaturationSamples += delta.TorqueSaturationSamples
	e.countersTotal.SafetyEvents += delta.SafetyEvents
	e.countersTotal.ProfileSwitches += delta.ProfileSwitches
	e.countersTotal.TelemetrySamples += delta.TelemetrySamples
	e.countersTotal.TelemetryLost += delta.TelemetryLost
	e.countersMu.Unlock()
}

// Stop signals the RT thread to exit after its current tick and waits
// for both threads to finish.
func (e *Engine) Stop(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		select {
		case <-e.rtStop:
		default:
			close(e.rtStop)
		}
		close(e.diagStop)

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		if e.blackbox != nil {
			e.blackbox.Stop()
			err2 := e.blackbox.Close()
			if err == nil {
				err = err2
			}
		}
	})
	return err
}

// SendGameInput enqueues one game-input sample (non-blocking,
// overwrite-oldest per spec.md §4.7).
func (e *Engine) SendGameInput(in device.GameInput) {
	e.gameInput.Push(in)
}

// ApplyPipeline requests a hot-swap of the filter pipeline, blocking
// until the RT loop's next tick boundary replies or ctx is done.
func (e *Engine) ApplyPipeline(ctx context.Context, cfg *pipeline.Config) (device.ApplyPipelineResult, error) {
	reply := make(chan device.ApplyPipelineResult, 1)
	if !e.commands.TryPush(device.Command{Kind: device.CommandApplyPipeline, Pipeline: cfg, Reply: reply}) {
		return device.ApplyPipelineResult{}, fmt.Errorf("orchestrator: command ring full, try again")
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return device.ApplyPipelineResult{}, ctx.Err()
	}
}

// UpdateSafety sends a hands-on/off update to the RT loop and mirrors both
// values into the diagnostics registry for reporting, independent of
// whether the RT loop has processed the command yet. The RT loop applies
// only the hands-on flag; thermal detection reads the temperature from
// game-input telemetry, so deviceTempC reaches only the registry.
func (e *Engine) UpdateSafety(handsOn bool, deviceTempC float32) bool {
	e.diag.Bools.Get("hands_on").Store(handsOn)
	e.diag.Floats.Get("device_temp_c").Set(float64(deviceTempC))
	return e.commands.TryPush(device.Command{Kind: device.CommandUpdateSafety, HandsOn: handsOn, DeviceTempC: deviceTempC})
}

// DiagnosticsSnapshot copies every currently registered named metric out
// of the diagnostics registry (spec.md §7 supplemented reporting surface;
// not part of the fixed Stats schema).
func (e *Engine) DiagnosticsSnapshot() map[string]float64 {
	out := make(map[string]float64, e.diag.TotalCount())
	e.diag.Floats.Range(func(key string, ptr *status.AtomicFloat) {
		out[key] = ptr.Get()
	})
	e.diag.Bools.Range(func(key string, ptr *atomic.Bool) {
		if ptr.Load() {
			out[key] = 1
		} else {
			out[key] = 0
		}
	})
	return out
}

// RequestShutdown asks the RT loop to stop at its next tick boundary,
// without waiting for it (see Stop for a blocking shutdown).
func (e *Engine) RequestShutdown() bool {
	return e.commands.TryPush(device.Command{Kind: device.CommandShutdown})
}

// GetStats returns cumulative-since-start engine health (spec.md §6's
// total_frames/dropped_frames are running totals, not a windowed rate —
// the live per-window numbers SnapshotAndReset drains every 500ms are
// folded into countersTotal by foldCounters rather than read directly
// here, which would race the reset and under-report).
func (e *Engine) GetStats() Stats {
	e.countersMu.Lock()
	snap := e.countersTotal
	live := e.counters.Peek()
	snap.Ticks += live.Ticks
	snap.MissedTicks += live.MissedTicks
	snap.PipelineTimingViolations += live.PipelineTimingViolations
	snap.HidWriteErrors += live.HidWriteErrors
	snap.TorqueSaturationCount += live.TorqueSaturationCount
	snap.TorqueSaturationSamples += live.TorqueSaturationSamples
	snap.SafetyEvents += live.SafetyEvents
	snap.ProfileSwitches += live.ProfileSwitches
	snap.TelemetrySamples += live.TelemetrySamples
	snap.TelemetryLost += live.TelemetryLost
	e.countersMu.Unlock()

	return Stats{
		Counters:    snap,
		Jitter:      e.jitterCollector.Snapshot(),
		Processing:  e.processingCollector.Snapshot(),
		SafetyState: e.safety.CurrentState().Kind,
		Ticks:       snap.Ticks,
		MissedTicks: snap.MissedTicks,
	}
}
