// Command ffbenginedemo is a composition root demonstrating the engine
// end to end against a loopback device and a synthetic game-input
// generator, with periodic stats logged to stderr.
//
// It is a demonstration harness, not a product: spec.md §1 Non-goals
// excludes any concrete HID/game-protocol implementation, so this
// command supplies trivial stand-ins for both.
package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openracing/ffbengine/device"
	"github.com/openracing/ffbengine/obslog"
	"github.com/openracing/ffbengine/orchestrator"
)

// loopbackDevice stands in for a real HID wheel base: it just counts
// writes and remembers the last torque value, which is enough to drive
// the demo's periodic log line.
type loopbackDevice struct {
	lastTorque float32
	writes     uint64
}

func (d *loopbackDevice) WriteFFBReport(torqueNm float32, seq uint16) error {
	d.lastTorque = torqueNm
	d.writes++
	return nil
}

func main() {
	duration := flag.Duration("duration", 5*time.Second, "how long to run the demo before shutting down")
	flag.Parse()

	log := obslog.Default()

	dev := &loopbackDevice{}
	cfg := orchestrator.DefaultConfig(dev)
	cfg.Logger = log

	engine, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start()
	log.Info().Dur("duration", *duration).Msg("engine started")

	stopInput := make(chan struct{})
	go generateGameInput(engine, stopInput)

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	deadline := time.NewTimer(*duration)
	defer deadline.Stop()

loop:
	for {
		select {
		case <-statsTicker.C:
			stats := engine.GetStats()
			log.Info().
				Str("safety_state", stats.SafetyState.String()).
				Uint64("ticks", stats.Ticks).
				Uint64("missed_ticks", stats.MissedTicks).
				Int64("jitter_p99_ns", stats.Jitter.P99NS).
				Bool("meets_gates", stats.MeetsGates()).
				Msg("stats")
		case <-deadline.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	close(stopInput)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := engine.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("engine stop did not complete cleanly")
	}

	log.Info().Uint64("hid_writes", dev.writes).Float32("last_torque", dev.lastTorque).Msg("engine stopped")
}

// generateGameInput feeds a slowly oscillating torque demand into the
// engine, standing in for a real sim/game telemetry source, until
// stopCh is closed.
func generateGameInput(engine *orchestrator.Engine, stopCh <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var t float64
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			t += 0.01
			scalar := float32(0.6 * math.Sin(t))
			engine.SendGameInput(device.GameInput{
				FFBScalar: scalar,
				Telemetry: &device.NormalizedTelemetry{
					WheelSpeed:  float32(math.Sin(t / 2)),
					DeviceTempC: 45,
				},
			})
			engine.UpdateSafety(true, 45)
		}
	}
}
