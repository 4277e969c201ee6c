package counters

import (
	"math"
	"sync/atomic"
)

// histogram domain: 1ns .. 1s (spec.md §4.8), logarithmic, with each
// decade split into 1000 log-spaced sub-buckets — HDR-histogram-style but hand-rolled, since no
// HDR histogram library appears anywhere in the retrieved pack.
const (
	minTrackableNS    = 1
	maxTrackableNS    = 1_000_000_000
	decades           = 9 // 10^0 .. 10^9 ns
	bucketsPerDecade  = 1000
	histogramBuckets  = decades * bucketsPerDecade
)

// Histogram is a lock-free log-bucketed histogram: Record is called from
// the non-RT collector (never the RT thread directly — the RT thread
// only ever pushes a raw nanosecond sample into a ringqueue.SPSC[int64],
// see scheduler.AbsoluteScheduler.JitterSamples), so plain atomic
// increments are sufficient with no mutex.
type Histogram struct {
	buckets [histogramBuckets]atomic.Uint64
	count   atomic.Uint64
	max     atomic.Int64
}

// Record adds one sample in nanoseconds, clamped to the histogram's
// tracked domain [0, maxTrackableNS].
func (h *Histogram) Record(valueNS int64) {
	if valueNS < 0 {
		valueNS = 0
	}
	if valueNS > maxTrackableNS {
		valueNS = maxTrackableNS
	}
	h.count.Add(1)
	for {
		cur := h.max.Load()
		if valueNS <= cur || h.max.CompareAndSwap(cur, valueNS) {
			break
		}
	}
	h.buckets[bucketIndex(valueNS)].Add(1)
}

// Reset clears all bucket counts.
func (h *Histogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
	h.count.Store(0)
	h.max.Store(0)
}

// HistogramSnapshot holds the percentiles the RT-loop jitter gate
// (spec.md §8 property 8) is evaluated against.
type HistogramSnapshot struct {
	Count int64
	P50NS int64
	P99NS int64
	MaxNS int64
}

// Snapshot computes P50/P99/Max from the current bucket counts. O(buckets),
// called at a low, non-RT cadence (the stats pull endpoint).
func (h *Histogram) Snapshot() HistogramSnapshot {
	total := h.count.Load()
	if total == 0 {
		return HistogramSnapshot{}
	}

	p50Target := (total + 1) / 2
	p99Target := total - total/100
	if p99Target < 1 {
		p99Target = 1
	}

	var running uint64
	var p50, p99 int64
	p50Found, p99Found := false, false

	for i := 0; i < histogramBuckets && !(p50Found && p99Found); i++ {
		running += h.buckets[i].Load()
		v := bucketValueNS(i)
		if !p50Found && running >= p50Target {
			p50 = v
			p50Found = true
		}
		if !p99Found && running >= p99Target {
			p99 = v
			p99Found = true
		}
	}

	return HistogramSnapshot{
		Count: int64(total),
		P50NS: p50,
		P99NS: p99,
		MaxNS: h.max.Load(),
	}
}

func bucketIndex(valueNS int64) int {
	v := valueNS
	if v < minTrackableNS {
		v = minTrackableNS
	}
	if v > maxTrackableNS {
		v = maxTrackableNS
	}
	exp := math.Log10(float64(v))
	decadeIdx := int(exp)
	if decadeIdx >= decades {
		decadeIdx = decades - 1
	}
	frac := exp - float64(decadeIdx)
	sub := int(frac * bucketsPerDecade)
	if sub >= bucketsPerDecade {
		sub = bucketsPerDecade - 1
	}
	idx := decadeIdx*bucketsPerDecade + sub
	if idx >= histogramBuckets {
		idx = histogramBuckets - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func bucketValueNS(idx int) int64 {
	decadeIdx := idx / bucketsPerDecade
	sub := idx % bucketsPerDecade
	exp := float64(decadeIdx) + float64(sub)/bucketsPerDecade
	return int64(math.Pow(10, exp))
}
