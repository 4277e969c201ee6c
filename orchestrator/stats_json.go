package orchestrator

import (
	"github.com/joeycumines/go-utilpkg/jsonenc"

	"github.com/openracing/ffbengine/counters"
)

// AppendJSON renders s as a single-line JSON object into dst, growing and
// returning dst. Allocation-light: callers on a hot query path can reuse a
// buffer across calls. Grounded on jsonenc.AppendFloat32/64/AppendString
// from the jsonenc package retrieved alongside the teacher repo, used here
// instead of encoding/json to avoid reflection-based encoding for a
// pull-based diagnostics endpoint that may be polled frequently.
func (s Stats) AppendJSON(dst []byte) []byte {
	dst = append(dst, '{')

	dst = appendKey(dst, "safety_state", true)
	dst = jsonenc.AppendString(dst, s.SafetyState.String())

	dst = appendKey(dst, "ticks", false)
	dst = appendUint(dst, s.Ticks)

	dst = appendKey(dst, "missed_ticks", false)
	dst = appendUint(dst, s.MissedTicks)

	dst = appendKey(dst, "hid_write_errors", false)
	dst = appendUint(dst, s.Counters.HidWriteErrors)

	dst = appendKey(dst, "torque_saturation_count", false)
	dst = appendUint(dst, s.Counters.TorqueSaturationCount)

	dst = appendKey(dst, "torque_saturation_samples", false)
	dst = appendUint(dst, s.Counters.TorqueSaturationSamples)

	dst = appendKey(dst, "safety_events", false)
	dst = appendUint(dst, s.Counters.SafetyEvents)

	dst = appendKey(dst, "pipeline_timing_violations", false)
	dst = appendUint(dst, s.Counters.PipelineTimingViolations)

	dst = appendKey(dst, "jitter", false)
	dst = appendHistogram(dst, s.Jitter)

	dst = appendKey(dst, "processing", false)
	dst = appendHistogram(dst, s.Processing)

	dst = appendKey(dst, "meets_gates", false)
	dst = appendBool(dst, s.MeetsGates())

	dst = append(dst, '}')
	return dst
}

// appendHistogram renders a counters.HistogramSnapshot as a nested JSON
// object of its percentile fields.
func appendHistogram(dst []byte, h counters.HistogramSnapshot) []byte {
	dst = append(dst, '{')
	dst = appendKey(dst, "count", true)
	dst = appendUint(dst, uint64(h.Count))
	dst = appendKey(dst, "p50_ns", false)
	dst = appendUint(dst, uint64(h.P50NS))
	dst = appendKey(dst, "p99_ns", false)
	dst = appendUint(dst, uint64(h.P99NS))
	dst = appendKey(dst, "max_ns", false)
	dst = appendUint(dst, uint64(h.MaxNS))
	dst = append(dst, '}')
	return dst
}

func appendKey(dst []byte, key string, first bool) []byte {
	if !first {
		dst = append(dst, ',')
	}
	dst = jsonenc.AppendString(dst, key)
	dst = append(dst, ':')
	return dst
}

func appendUint(dst []byte, v uint64) []byte {
	return jsonenc.AppendFloat64(dst, float64(v))
}

func appendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 't', 'r', 'u', 'e')
	}
	return append(dst, 'f', 'a', 'l', 's', 'e')
}
