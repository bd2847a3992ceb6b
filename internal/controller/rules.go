package controller

import (
	"fmt"

	"github.com/chunyongman/coolctl/internal/equipment"
)

// Rule identifiers emitted by the baseline and fine-tuning layers. The
// emergency and count layers carry their own.
const (
	RuleBasePrediction = "BASE_PRED"
	RuleBasePID        = "BASE_PID"
	RuleBaseCold       = "BASE_COLD"

	RulePreemptFWInlet = "PREEMPT_FW_INLET"

	RuleLoadUp   = "LOAD_CORR_UP"
	RuleLoadDown = "LOAD_CORR_DOWN"

	RuleRegionTropical = "REGION_TROPIC"
	RuleRegionPolar    = "REGION_POLAR"

	RuleCriticalHoldSW  = "CRIT_HOLD_SW"
	RuleCriticalHoldFW  = "CRIT_HOLD_FW"
	RuleCriticalHoldFan = "CRIT_HOLD_FAN"

	RuleRateLimitSW  = "RATE_LIM_SW"
	RuleRateLimitFW  = "RATE_LIM_FW"
	RuleRateLimitFan = "RATE_LIM_FAN"

	RuleHysteresisSW  = "HYST_SW"
	RuleHysteresisFW  = "HYST_FW"
	RuleHysteresisFan = "HYST_FAN"
)

// correction is one fine-tuning tier's verdict: a frequency delta or a
// pass-through.
type correction struct {
	DeltaHz float64
	RuleID  string
	Reason  string
	Fired   bool
}

// tempBand is one row of a discrete correction table. Each band carries
// its own maximum correction magnitude.
type tempBand struct {
	AtOrAbove float64
	DeltaHz   float64
	RuleID    string
}

// Seawater pump bands, keyed on the hotter cooler outlet. Evaluated top
// down; first match wins. Low bands use Below semantics via negative
// deltas at the tail.
var swPumpBands = []tempBand{
	{AtOrAbove: 46, DeltaHz: 4.0, RuleID: "SW_BAND_H3"},
	{AtOrAbove: 44, DeltaHz: 2.5, RuleID: "SW_BAND_H2"},
	{AtOrAbove: 42, DeltaHz: 1.0, RuleID: "SW_BAND_H1"},
}

var swPumpLowBands = []tempBand{
	{AtOrAbove: -1e9, DeltaHz: -2.0, RuleID: "SW_BAND_L2"}, // below 36
	{AtOrAbove: 36, DeltaHz: -1.0, RuleID: "SW_BAND_L1"},   // 36..39
}

// Deviation bands for the setpoint-held loops, keyed on measured minus
// setpoint.
var fwPumpBands = []tempBand{
	{AtOrAbove: 4.0, DeltaHz: 3.0, RuleID: "FW_BAND_H2"},
	{AtOrAbove: 2.0, DeltaHz: 1.5, RuleID: "FW_BAND_H1"},
}

var fwPumpLowBands = []tempBand{
	{AtOrAbove: -1e9, DeltaHz: -3.0, RuleID: "FW_BAND_L2"}, // below -4
	{AtOrAbove: -4.0, DeltaHz: -1.5, RuleID: "FW_BAND_L1"}, // -4..-2
}

var fanBands = []tempBand{
	{AtOrAbove: 3.0, DeltaHz: 3.0, RuleID: "FAN_BAND_H2"},
	{AtOrAbove: 1.5, DeltaHz: 1.5, RuleID: "FAN_BAND_H1"},
}

var fanLowBands = []tempBand{
	{AtOrAbove: -1e9, DeltaHz: -2.0, RuleID: "FAN_BAND_L2"}, // below -3
	{AtOrAbove: -3.0, DeltaHz: -1.0, RuleID: "FAN_BAND_L1"}, // -3..-1.5
}

func matchBands(high []tempBand, highKey float64, low []tempBand, lowKey float64, lowCutoff float64, unit string) (correction, bool) {
	for _, band := range high {
		if highKey >= band.AtOrAbove {
			return correction{
				DeltaHz: band.DeltaHz,
				RuleID:  band.RuleID,
				Reason:  fmt.Sprintf("%s %.1f°C in band ≥%.1f, %+.1f Hz", unit, highKey, band.AtOrAbove, band.DeltaHz),
				Fired:   true,
			}, true
		}
	}

	if lowKey >= lowCutoff {
		return correction{}, false
	}
	// Walk low bands from the warmest cutoff down.
	for i := len(low) - 1; i >= 0; i-- {
		band := low[i]
		if lowKey >= band.AtOrAbove {
			return correction{
				DeltaHz: band.DeltaHz,
				RuleID:  band.RuleID,
				Reason:  fmt.Sprintf("%s %.1f°C in band <%.1f, %+.1f Hz", unit, lowKey, lowCutoff, band.DeltaHz),
				Fired:   true,
			}, true
		}
	}

	return correction{}, false
}

// bandCorrection returns the temperature-band correction for a group.
func bandCorrection(group equipment.Group, snap SensorSnapshot, fwSetpoint, roomSetpoint float64) (correction, bool) {
	switch group {
	case equipment.GroupSWPump:
		t := snap.CoolerOutletMax()
		return matchBands(swPumpBands, t, swPumpLowBands, t, 39, "cooler outlet")
	case equipment.GroupFWPump:
		d := snap.FWOutlet - fwSetpoint
		return matchBands(fwPumpBands, d, fwPumpLowBands, d, -2, "fw outlet deviation")
	default:
		d := snap.EngineRoom - roomSetpoint
		return matchBands(fanBands, d, fanLowBands, d, -1.5, "engine room deviation")
	}
}

// loadCorrection scales the pump frequencies with engine load: high load
// means more heat to move, low load means energy to save.
func loadCorrection(baseHz, engineLoad float64) (correction, bool) {
	switch {
	case engineLoad >= 70:
		return correction{
			DeltaHz: baseHz * 0.075,
			RuleID:  RuleLoadUp,
			Reason:  fmt.Sprintf("engine load %.1f%% ≥ 70%%, +7.5%%", engineLoad),
			Fired:   true,
		}, true
	case engineLoad < 30:
		return correction{
			DeltaHz: -baseHz * 0.05,
			RuleID:  RuleLoadDown,
			Reason:  fmt.Sprintf("engine load %.1f%% < 30%%, -5%%", engineLoad),
			Fired:   true,
		}, true
	default:
		return correction{}, false
	}
}

// regionCorrection adjusts the seawater pumps for the water the ship is
// actually sailing in.
func regionCorrection(baseHz, seaTemp float64) (correction, bool) {
	switch {
	case seaTemp > 28:
		return correction{
			DeltaHz: baseHz * 0.05,
			RuleID:  RuleRegionTropical,
			Reason:  fmt.Sprintf("tropical seawater %.1f°C, +5%%", seaTemp),
			Fired:   true,
		}, true
	case seaTemp < 15:
		return correction{
			DeltaHz: -baseHz * 0.05,
			RuleID:  RuleRegionPolar,
			Reason:  fmt.Sprintf("polar seawater %.1f°C, -5%%", seaTemp),
			Fired:   true,
		}, true
	default:
		return correction{}, false
	}
}

// preemptCorrection raises the seawater pumps when the freshwater inlet
// is forecast to cross its limit even though it has not yet.
func preemptCorrection(snap SensorSnapshot, pred *PredictionRecord, fwInletLimit float64) (correction, bool) {
	if pred == nil {
		return correction{}, false
	}
	if snap.FWInlet >= fwInletLimit || pred.FWInlet.Min5 < fwInletLimit {
		return correction{}, false
	}

	return correction{
		DeltaHz: 2.0,
		RuleID:  RulePreemptFWInlet,
		Reason: fmt.Sprintf("fw inlet %.1f°C forecast to reach %.1f°C within 5 min, preemptive +2 Hz",
			snap.FWInlet, pred.FWInlet.Min5),
		Fired: true,
	}, true
}
