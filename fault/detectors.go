package fault

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Thresholds configures every detector. A plain Go struct accepted by the
// constructor rather than parsed from a file (spec.md §1 Non-goal: config
// file format). Defaults come from original_source where spec.md §9
// leaves the concrete numbers open.
type Thresholds struct {
	UsbStallTimeoutNS uint64

	EncoderNaNConsecutive int

	ThermalLimitC      float32
	ThermalHysteresisC float32

	PluginOverrunThresholdNS uint64
	PluginOverrunCount       int
	PluginOverrunWindow      time.Duration

	TimingViolationThresholdNS uint64
	TimingViolationCount       int
	TimingViolationWindow      time.Duration
}

// DefaultThresholds resolves spec.md §9's open question using the
// original_source reference implementation's constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UsbStallTimeoutNS:          20_000_000,
		EncoderNaNConsecutive:      10,
		ThermalLimitC:              80,
		ThermalHysteresisC:         5,
		PluginOverrunThresholdNS:   100_000,
		PluginOverrunCount:         12,
		PluginOverrunWindow:        time.Second,
		TimingViolationThresholdNS: 250_000,
		TimingViolationCount:       5,
		TimingViolationWindow:      time.Second,
	}
}

// usbStallDetector trips when no successful HID write has landed within
// UsbStallTimeoutNS of the last one.
type usbStallDetector struct {
	timeoutNS  uint64
	lastOkNS   uint64
	seen       bool
}

func newUsbStallDetector(t Thresholds) *usbStallDetector {
	return &usbStallDetector{timeoutNS: t.UsbStallTimeoutNS}
}

func (d *usbStallDetector) noteWriteOK(nowNS uint64) {
	d.lastOkNS = nowNS
	d.seen = true
}

func (d *usbStallDetector) check(nowNS uint64) bool {
	if !d.seen {
		d.lastOkNS = nowNS
		d.seen = true
		return false
	}
	return nowNS-d.lastOkNS >= d.timeoutNS
}

// encoderNaNDetector trips after EncoderNaNConsecutive consecutive bad
// telemetry samples.
type encoderNaNDetector struct {
	threshold int
	streak    int
}

func newEncoderNaNDetector(t Thresholds) *encoderNaNDetector {
	return &encoderNaNDetector{threshold: t.EncoderNaNConsecutive}
}

func (d *encoderNaNDetector) note(sampleIsBad bool) bool {
	if sampleIsBad {
		d.streak++
	} else {
		d.streak = 0
	}
	return d.streak >= d.threshold
}

// thermalDetector trips above ThermalLimitC and clears only after the
// temperature drops by ThermalHysteresisC below that limit, to avoid
// chattering at the boundary.
type thermalDetector struct {
	limitC     float32
	hysteresis float32
	tripped    bool
}

func newThermalDetector(t Thresholds) *thermalDetector {
	return &thermalDetector{limitC: t.ThermalLimitC, hysteresis: t.ThermalHysteresisC}
}

func (d *thermalDetector) note(tempC float32) bool {
	if !d.tripped {
		if tempC >= d.limitC {
			d.tripped = true
		}
	} else {
		if tempC <= d.limitC-d.hysteresis {
			d.tripped = false
		}
	}
	return d.tripped
}

// catrateWindowDetector answers "more than N violations in window W"
// using github.com/joeycumines/go-catrate's sliding-window rate limiter:
// each call to note reports a violation as an Allow() attempt against a
// rate capped at count per window, so the first count violations within
// the window are allowed and the (count+1)-th is the one that is
// disallowed and trips the fault.
//
// catrate.Limiter briefly takes an internal RWMutex per call and spawns a
// single background cleanup goroutine on first use; this detector is
// therefore not wait-free in the strictest sense, but fault-window
// bookkeeping is explicitly not on the ≤250µs torque-output budget
// (spec.md §4.6) and the critical section is uncontended (one caller).
type catrateWindowDetector struct {
	limiter  *catrate.Limiter
	category string
}

func newCatrateWindowDetector(category string, window time.Duration, count int) *catrateWindowDetector {
	if count < 1 {
		count = 1
	}
	return &catrateWindowDetector{
		limiter:  catrate.NewLimiter(map[time.Duration]int{window: count}),
		category: category,
	}
}

// note reports one violation occurrence and returns true once the
// configured count has been exceeded within the window.
func (d *catrateWindowDetector) note() bool {
	_, ok := d.limiter.Allow(d.category)
	return !ok
}
