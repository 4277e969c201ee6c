package orchestrator

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/openracing/ffbengine/counters"
	"github.com/openracing/ffbengine/device"
	"github.com/openracing/ffbengine/pipeline"
)

type fakeDevice struct {
	writes int
}

func (d *fakeDevice) WriteFFBReport(torqueNm float32, seq uint16) error {
	d.writes++
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{}
	cfg := DefaultConfig(dev)
	cfg.TickInterval = time.Millisecond
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, dev
}

func TestEngineStartStop(t *testing.T) {
	e, dev := newTestEngine(t)
	e.Start()

	e.SendGameInput(device.GameInput{FFBScalar: 0.1})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if dev.writes == 0 {
		t.Fatal("expected at least one HID write during the run")
	}
}

func TestEngineApplyPipelineRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.Stop(ctx)
	}()

	cfg, err := pipeline.NewConfig(nil, nil, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := e.ApplyPipeline(ctx, cfg)
	if err != nil {
		t.Fatalf("ApplyPipeline: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected acceptance, got reason %q", res.Reason)
	}
}

func TestEngineUpdateSafetyAndShutdown(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Start()

	if !e.UpdateSafety(true, 40) {
		t.Fatal("expected UpdateSafety command to be accepted by the ring")
	}
	if !e.RequestShutdown() {
		t.Fatal("expected RequestShutdown command to be accepted by the ring")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStatsMeetsGates(t *testing.T) {
	good := Stats{}
	if !good.MeetsGates() {
		t.Fatal("zero-value stats should meet gates")
	}

	bad := Stats{}
	bad.Jitter.P99NS = 1_000_000
	if bad.MeetsGates() {
		t.Fatal("high jitter p99 should fail gates")
	}

	bad2 := Stats{Ticks: 1_000_000, MissedTicks: 100}
	if bad2.MeetsGates() {
		t.Fatal("excessive missed-tick rate should fail gates")
	}
}

// TestScenarioS5GateMath follows spec.md §8 scenario S5: a passing set of
// measurements, then each threshold substituted one at a time with a
// failing value.
func TestScenarioS5GateMath(t *testing.T) {
	passing := Stats{
		Ticks:       1_000_000,
		MissedTicks: 5, // rate 5e-6
		Jitter:      counters.HistogramSnapshot{P99NS: 200_000},
		Processing:  counters.HistogramSnapshot{MaxNS: 500_000, P50NS: 40_000, P99NS: 180_000},
	}
	if !passing.MeetsGates() {
		t.Fatal("S5 baseline measurements should meet all gates")
	}

	failing := []struct {
		name   string
		mutate func(s *Stats)
	}{
		{"rt_loop", func(s *Stats) { s.Processing.MaxNS = 1_100_000 }},
		{"jitter_p99", func(s *Stats) { s.Jitter.P99NS = 300_000 }},
		{"missed_tick_rate", func(s *Stats) { s.Ticks = 1_000_000; s.MissedTicks = 20 }},
		{"proc_median", func(s *Stats) { s.Processing.P50NS = 60_000 }},
		{"proc_p99", func(s *Stats) { s.Processing.P99NS = 250_000 }},
	}
	for _, f := range failing {
		s := passing
		f.mutate(&s)
		if s.MeetsGates() {
			t.Fatalf("%s: expected MeetsGates to fail after substitution", f.name)
		}
	}
}

func TestStatsAppendJSON(t *testing.T) {
	e, _ := newTestEngine(t)
	stats := e.GetStats()
	got := stats.AppendJSON(nil)
	if len(got) == 0 || got[0] != '{' || got[len(got)-1] != '}' {
		t.Fatalf("AppendJSON produced malformed output: %s", got)
	}
	if !bytes.Contains(got, []byte(`"safety_state"`)) {
		t.Fatalf("expected safety_state field in %s", got)
	}
}
