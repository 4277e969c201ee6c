package pipeline

import (
	"sync/atomic"
)

// Pipeline holds the currently active Config behind an atomic pointer,
// read without locking. The RT loop itself calls SwapAt while draining its
// command ring at the start of a tick, so a swap takes effect at that
// tick's Process (spec.md §4.3/§5 "hot-swap at tick boundary").
type Pipeline struct {
	current atomic.Pointer[Config]
}

// New returns a Pipeline running cfg from the first Process call.
func New(cfg *Config) *Pipeline {
	p := &Pipeline{}
	p.current.Store(cfg)
	return p
}

// SwapAt installs cfg as the active configuration and returns the
// previously active one, for the caller to discard once it's certain no
// in-flight tick still references it (the RT thread only ever reads the
// pointer once per tick, at the top of Process, so the old Config is
// safe to drop as soon as this returns). Called on the RT thread by
// rtloop while it drains commands, before that tick's Process.
func (p *Pipeline) SwapAt(cfg *Config) *Config {
	return p.current.Swap(cfg)
}

// Current returns the active configuration. Safe to call from the RT
// thread.
func (p *Pipeline) Current() *Config {
	return p.current.Load()
}

// Process runs frame through the active configuration's fixed-order node
// chain followed by the curve-mapping stage, guarding every node's
// output against NaN/±Inf by replacing the torque with 0 instead of
// propagating the bad value (spec.md §4.3/§7 failure semantics: "no
// panics on the RT thread"). Returns the count of nodes whose output was
// discarded this tick, for the caller to feed into the error counters
// (counters.AtomicCounters).
func (p *Pipeline) Process(frame *Frame, dtSeconds float32) (badNodeCount int) {
	cfg := p.current.Load()
	if cfg == nil {
		return 0
	}

	frame.TorqueOut = frame.FFBIn

	for _, node := range cfg.nodes {
		node.Process(frame, dtSeconds)
		if isBadFloat(frame.TorqueOut) {
			frame.TorqueOut = 0
			badNodeCount++
		}
	}

	frame.TorqueOut = clampAbs(frame.TorqueOut, 1)

	if cfg.LUT != nil {
		frame.TorqueOut = cfg.LUT.LookupSigned(frame.TorqueOut)
	}

	if isBadFloat(frame.TorqueOut) {
		frame.TorqueOut = 0
		badNodeCount++
	}

	return badNodeCount
}
