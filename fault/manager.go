package fault

// Input is the set of per-tick signals the RT loop hands to
// Manager.Update (spec.md §4.5: fault detection reads encoder/telemetry
// health, HID write outcome, device temperature, and processing-time
// samples).
type Input struct {
	NowNS            uint64
	HidWriteOK       bool
	TelemetryIsBad   bool
	DeviceTempC      float32
	ProcessingTimeNS uint64
	PluginTimeNS     uint64
	HadPluginCall    bool
	// Overcurrent carries an external or injected overcurrent signal
	// (spec.md §4.5: "External or injected signal") — unlike the other
	// rules, this detector has no internal state of its own; the signal
	// source (current-sense hardware, a test harness) owns the decision.
	Overcurrent bool
}

// Manager runs every detector once per tick and reports every fault whose
// condition holds that tick. Grounded on original_source/crates/engine/src/safety/*.rs's
// FaultManager naming; RT-loop owned (called once per tick from
// rtloop.Loop.RunTick, spec.md §4.6 step 9), with a reused result slice
// to avoid per-tick allocation.
type Manager struct {
	thresholds Thresholds

	usbStall    *usbStallDetector
	encoderNaN  *encoderNaNDetector
	thermal     *thermalDetector
	pluginRate  *catrateWindowDetector
	timingRate  *catrateWindowDetector

	result []Kind
}

// NewManager builds a Manager with all detectors wired from thresholds.
func NewManager(thresholds Thresholds) *Manager {
	return &Manager{
		thresholds: thresholds,
		usbStall:   newUsbStallDetector(thresholds),
		encoderNaN: newEncoderNaNDetector(thresholds),
		thermal:    newThermalDetector(thresholds),
		pluginRate: newCatrateWindowDetector("plugin_overrun", thresholds.PluginOverrunWindow, thresholds.PluginOverrunCount),
		timingRate: newCatrateWindowDetector("timing_violation", thresholds.TimingViolationWindow, thresholds.TimingViolationCount),
		result:     make([]Kind, 0, 4),
	}
}

// Update runs every detector against in and returns the faults detected
// this tick. A condition that persists (a tripped thermal detector, an
// asserted overcurrent signal, a continuing HID write stall) is reported
// again on every tick it holds. The slice may be empty, is never nil, and
// is only valid until the next call to Update.
func (m *Manager) Update(in Input) []Kind {
	m.result = m.result[:0]

	if in.HidWriteOK {
		m.usbStall.noteWriteOK(in.NowNS)
	} else if m.usbStall.check(in.NowNS) {
		m.result = append(m.result, UsbStall)
	}

	if m.encoderNaN.note(in.TelemetryIsBad) {
		m.result = append(m.result, EncoderNaN)
	}

	if m.thermal.note(in.DeviceTempC) {
		m.result = append(m.result, ThermalLimit)
	}

	if in.HadPluginCall && in.PluginTimeNS >= m.thresholds.PluginOverrunThresholdNS {
		if m.pluginRate.note() {
			m.result = append(m.result, PluginOverrun)
		}
	}

	if in.ProcessingTimeNS >= m.thresholds.TimingViolationThresholdNS {
		if m.timingRate.note() {
			m.result = append(m.result, TimingViolation)
		}
	}

	if in.Overcurrent {
		m.result = append(m.result, Overcurrent)
	}

	return m.result
}
