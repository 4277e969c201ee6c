package pipeline

import "math"

// NotchParams configures a biquad band-reject (notch) filter used to
// suppress a resonant gear-mesh/belt frequency in the torque signal
// (spec.md §4.3 "notch").
type NotchParams struct {
	CenterHz  float32
	Bandwidth float32 // in Hz
}

// notchNode is a direct-form-I biquad band-reject filter. Coefficients
// are derived once from CenterHz/Bandwidth/sample-rate (RBJ cookbook
// formulas), the per-tick Process does only the floating-point difference
// equation — no allocation, no trig on the hot path.
type notchNode struct {
	p          NotchParams
	b0, b1, b2 float32
	a1, a2     float32
	x1, x2     float32
	y1, y2     float32
	coeffsSet  bool
	sampleHz   float32
}

func newNotchNode(p NotchParams) *notchNode {
	return &notchNode{p: p}
}

func (n *notchNode) computeCoeffs(dtSeconds float32) {
	sampleHz := 1 / dtSeconds
	if n.coeffsSet && n.sampleHz == sampleHz {
		return
	}
	n.sampleHz = sampleHz

	center := n.p.CenterHz
	if center <= 0 {
		center = 1
	}
	bw := n.p.Bandwidth
	if bw <= 0 {
		bw = center / 10
	}

	w0 := 2 * math.Pi * float64(center) / float64(sampleHz)
	// Q = center/bandwidth (both in Hz); alpha = sin(w0)/(2Q).
	alpha := math.Sin(w0) * float64(bw) / (2 * float64(center))
	cosw0 := math.Cos(w0)

	b0 := 1.0
	b1 := -2 * cosw0
	b2 := 1.0
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	n.b0 = float32(b0 / a0)
	n.b1 = float32(b1 / a0)
	n.b2 = float32(b2 / a0)
	n.a1 = float32(a1 / a0)
	n.a2 = float32(a2 / a0)
	n.coeffsSet = true
}

func (n *notchNode) Process(f *Frame, dtSeconds float32) {
	n.computeCoeffs(dtSeconds)

	x0 := f.TorqueOut
	y0 := n.b0*x0 + n.b1*n.x1 + n.b2*n.x2 - n.a1*n.y1 - n.a2*n.y2

	n.x2, n.x1 = n.x1, x0
	n.y2, n.y1 = n.y1, y0

	f.TorqueOut = y0
}

func (n *notchNode) Reset() {
	n.x1, n.x2, n.y1, n.y2 = 0, 0, 0, 0
	n.coeffsSet = false
}

// BumpstopParams configures the end-of-travel spring node.
type BumpstopParams struct {
	StartAngle float32 // degrees from center at which the spring engages
	MaxAngle   float32 // degrees from center at full lock
	Stiffness  float32 // torque contribution at MaxAngle, in [0,1]
}

// bumpstopNode maintains its own integrated wheel-angle estimate from
// wheel_speed*dt as bounded per-node state: spec.md's shared Frame has no
// angle field, and adding one would widen the RT hot-path data for every
// other node just to serve this one (spec.md §4.3 "bounded per-node
// state").
type bumpstopNode struct {
	p     BumpstopParams
	angle float32 // degrees, wraps via clamping, not modulo — this is an
	// estimate, not a real encoder reading
}

func newBumpstopNode(p BumpstopParams) *bumpstopNode {
	return &bumpstopNode{p: p}
}

func (n *bumpstopNode) Process(f *Frame, dtSeconds float32) {
	n.angle += f.WheelSpeed * dtSeconds * 360
	maxAngle := n.p.MaxAngle
	if maxAngle <= 0 {
		maxAngle = 900
	}
	n.angle = clampAbs(n.angle, maxAngle)

	mag := n.angle
	if mag < 0 {
		mag = -mag
	}
	if mag <= n.p.StartAngle {
		return
	}
	span := maxAngle - n.p.StartAngle
	if span <= 0 {
		span = 1
	}
	penetration := (mag - n.p.StartAngle) / span
	if penetration > 1 {
		penetration = 1
	}
	f.TorqueOut += -n.p.Stiffness * penetration * sign(n.angle)
}

func (n *bumpstopNode) Reset() { n.angle = 0 }
