// Package curve implements the 256-entry response-curve lookup table of
// spec.md §3/§4.2 (C2): a monotone [0,1]→[0,1] mapping, built offline from
// a shape descriptor and looked up on the RT path with linear
// interpolation.
//
// Grounded on vmath.ExpDecayLUT / vmath.Atan2 from the teacher repository
// (vmath/lut.go): both precompute a fixed-size table once (there: in an
// init(), scaled to Q32.32 fixed point; here: in Build, as float32) and
// interpolate at lookup by splitting the scaled index into an integer and
// a fractional part. The fixed-point scaling isn't needed here since
// curve inputs/outputs are already normalized floats.
package curve

import (
	"fmt"
	"math"
)

// Size is the number of samples in a LUT, fixed by spec.md §3.
const Size = 256

// endpointTolerance is the ±0.02 allowed deviation of shape(0) from 0 and
// shape(1) from 1 required by spec.md §3/§8 property 1.
const endpointTolerance = 0.02

// LUT is a 256-entry monotone non-decreasing [0,1]→[0,1] mapping.
type LUT struct {
	samples [Size]float32
}

// Build samples shape at Size equally spaced points in [0,1] and validates
// its endpoints. Non-RT operation (spec.md §3).
func Build(shape Shape) (*LUT, error) {
	y0 := shape.evaluate(0)
	y1 := shape.evaluate(1)
	if math.Abs(y0-0) > endpointTolerance {
		return nil, fmt.Errorf("curve: shape(0)=%.4f outside tolerance %.2f of 0", y0, endpointTolerance)
	}
	if math.Abs(y1-1) > endpointTolerance {
		return nil, fmt.Errorf("curve: shape(1)=%.4f outside tolerance %.2f of 1", y1, endpointTolerance)
	}

	lut := &LUT{}
	for i := 0; i < Size; i++ {
		x := float64(i) / float64(Size-1)
		v := shape.evaluate(x)
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		lut.samples[i] = float32(v)
	}
	return lut, nil
}

// Lookup clamps x to [0,1], then linearly interpolates between the two
// nearest samples. Deterministic: identical inputs always yield
// bit-identical outputs (spec.md §8 property 3).
func (l *LUT) Lookup(x float32) float32 {
	if l == nil {
		return x
	}
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}

	s := x * float32(Size-1)
	i := int(s)
	if i >= Size-1 {
		return clamp01(l.samples[Size-1])
	}
	frac := s - float32(i)
	v := l.samples[i]*(1-frac) + l.samples[i+1]*frac
	return clamp01(v)
}

// LookupSigned applies the curve to |x|, restoring the original sign —
// the signed-torque convention of spec.md §3/§4.3 ("curve mapping" stage).
func (l *LUT) LookupSigned(x float32) float32 {
	if x < 0 {
		return -l.Lookup(-x)
	}
	return l.Lookup(x)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
