package pipeline

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/openracing/ffbengine/curve"
)

// NodeKind tags which concrete Node a NodeSpec describes. A closed set,
// matching spec.md §4.3's fixed filter-pipeline node list — not an open
// plugin registry (spec.md §9).
type NodeKind int

const (
	NodeReconstruction NodeKind = iota
	NodeFriction
	NodeDamper
	NodeInertia
	NodeNotch
	NodeSlew
	NodeBumpstop
	NodeHandsOff
)

// NodeSpec is a tagged union describing one pipeline stage's
// configuration. Exactly one of the embedded *Params fields is
// meaningful, selected by Kind — a closed variant rather than an
// interface{}, so a hot-swap can be validated and hashed without type
// assertions scattered through the engine (spec.md §9 "closed tagged
// variant" guidance, generalized from the teacher's event.GameEvent
// tagging).
type NodeSpec struct {
	Kind NodeKind

	Reconstruction ReconstructionParams
	Friction       FrictionParams
	Damper         DamperParams
	Inertia        InertiaParams
	Notch          NotchParams
	Slew           SlewParams
	Bumpstop       BumpstopParams
	HandsOff       HandsOffParams
}

func (s NodeSpec) build() (Node, error) {
	switch s.Kind {
	case NodeReconstruction:
		return newReconNode(s.Reconstruction), nil
	case NodeFriction:
		return newFrictionNode(s.Friction), nil
	case NodeDamper:
		return newDamperNode(s.Damper), nil
	case NodeInertia:
		return newInertiaNode(s.Inertia), nil
	case NodeNotch:
		return newNotchNode(s.Notch), nil
	case NodeSlew:
		return newSlewNode(s.Slew), nil
	case NodeBumpstop:
		return newBumpstopNode(s.Bumpstop), nil
	case NodeHandsOff:
		return newHandsOffNode(s.HandsOff), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown node kind %d", s.Kind)
	}
}

func (s NodeSpec) writeHash(h interface{ Write([]byte) (int, error) }) {
	buf := []byte(fmt.Sprintf("%d|%+v", s.Kind, s))
	h.Write(buf)
}

// Config is a compiled, immutable filter pipeline plus the response curve
// it feeds into. Built once (non-RT), then swapped into a Pipeline at a
// tick boundary (spec.md §4.3 "hot-swap without allocation").
type Config struct {
	nodes        []Node
	LUT          *curve.LUT
	ConfigHash   uint64
	TickInterval time.Duration
}

// NewConfig builds concrete Node instances from specs in order, attaches
// lut (nil means pass-through, no curve stage), and computes a stable
// FNV-1a hash over the spec list for diagnostic/blackbox identification
// of which configuration produced a given frame (spec.md §4.3, §7
// "ConfigHash").
func NewConfig(specs []NodeSpec, lut *curve.LUT, tickInterval time.Duration) (*Config, error) {
	if tickInterval <= 0 {
		return nil, fmt.Errorf("pipeline: tick interval must be positive, got %v", tickInterval)
	}

	nodes := make([]Node, 0, len(specs))
	h := fnv.New64a()
	for i, spec := range specs {
		node, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("pipeline: node %d: %w", i, err)
		}
		nodes = append(nodes, node)
		spec.writeHash(h)
	}

	return &Config{
		nodes:        nodes,
		LUT:          lut,
		ConfigHash:   h.Sum64(),
		TickInterval: tickInterval,
	}, nil
}
