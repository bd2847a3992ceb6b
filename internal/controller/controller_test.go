package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunyongman/coolctl/internal/count"
	"github.com/chunyongman/coolctl/internal/equipment"
	"github.com/chunyongman/coolctl/internal/safety"
)

type fakeClock struct {
	at time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{at: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestController(t *testing.T, clock *fakeClock) (*Controller, *equipment.Registry) {
	t.Helper()

	registry := equipment.NewRegistry(clock.now)
	for _, id := range []string{"SW-P1", "SW-P2", "SW-P3"} {
		registry.Register(id, equipment.GroupSWPump)
	}
	for _, id := range []string{"FW-P1", "FW-P2", "FW-P3"} {
		registry.Register(id, equipment.GroupFWPump)
	}
	for _, id := range []string{"ER-F1", "ER-F2", "ER-F3", "ER-F4"} {
		registry.Register(id, equipment.GroupFan)
	}
	for _, id := range []string{"SW-P1", "SW-P2", "FW-P1", "FW-P2", "ER-F1", "ER-F2"} {
		require.NoError(t, registry.Start(id))
	}

	ctrl := NewController(DefaultConfig(), safety.DefaultConstraints(), count.DefaultConfig(), registry, clock.now)

	return ctrl, registry
}

// benignSnapshot sits at both setpoints with everything well inside the
// limit tables.
func benignSnapshot(at time.Time, load float64) SensorSnapshot {
	return SensorSnapshot{
		SeaInlet:    25,
		CoolerOutA:  40,
		CoolerOutB:  39.6,
		FWInlet:     39,
		FWOutlet:    35,
		EngineRoom:  43,
		OutsideAir:  30,
		PressureBar: 1.0,
		EngineLoad:  load,
		Timestamp:   at,
	}
}

func TestDecideEmergencyFanOverride(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	snap.EngineRoom = 47.5

	decision := ctrl.Decide(snap, nil)

	assert.True(t, decision.SafetyOverride)
	assert.Equal(t, safety.MaxFrequencyHz, decision.Frequencies.Fan)
	assert.Contains(t, decision.Rules, safety.RuleEmergencyFan)
	// The escalation ladder's emergency tier also adds a fan on top of
	// the engine-running floor of three.
	assert.Contains(t, decision.Rules, count.RuleFanEmerg)
	assert.Equal(t, 4, decision.Counts.Fan)
}

func TestDecideLowPressureForcesSWPumps(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	snap.PressureBar = 0.4

	decision := ctrl.Decide(snap, nil)

	assert.True(t, decision.SafetyOverride)
	assert.Equal(t, safety.MaxFrequencyHz, decision.Frequencies.SWPump)
	assert.Contains(t, decision.Rules, safety.RuleEmergencyPressure)
}

func TestDecidePumpTierAtLowLoad(t *testing.T) {
	clock := newFakeClock()
	ctrl, registry := newTestController(t, clock)

	decision := ctrl.Decide(benignSnapshot(clock.now(), 25), nil)

	assert.Equal(t, 2, decision.Counts.SWPump)
	assert.Equal(t, 2, decision.Counts.FWPump)
	assert.Contains(t, decision.Rules, count.RulePumpTierMin)
	assert.Contains(t, decision.Rules, RuleLoadDown)
	assert.InDelta(t, 47.5, decision.Frequencies.SWPump, 1e-9)
	assert.Equal(t, registry.RunningCount(equipment.GroupSWPump), registry.RunningCount(equipment.GroupFWPump))
}

func TestDecidePreemptiveSWRaise(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	snap.FWInlet = 44

	pred := &PredictionRecord{
		FWInlet:    Forecast{Min5: 48.2},
		Confidence: 0.9,
		Timestamp:  snap.Timestamp,
	}

	decision := ctrl.Decide(snap, pred)

	assert.Contains(t, decision.Rules, RulePreemptFWInlet)
	assert.InDelta(t, 52.0, decision.Frequencies.SWPump, 1e-9)
	assert.False(t, decision.SafetyOverride)
}

func TestDecidePredictionSeedsBaseline(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	pred := &PredictionRecord{
		Frequencies: &Frequencies{SWPump: 52, FWPump: 48, Fan: 55},
		Confidence:  0.8,
		Timestamp:   snap.Timestamp,
	}

	decision := ctrl.Decide(snap, pred)

	assert.Contains(t, decision.Rules, RuleBasePrediction)
	assert.InDelta(t, 52.0, decision.Frequencies.SWPump, 1e-9)
	assert.InDelta(t, 48.0, decision.Frequencies.FWPump, 1e-9)
	assert.InDelta(t, 55.0, decision.Frequencies.Fan, 1e-9)
}

func TestDecideLowConfidencePredictionIgnored(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	pred := &PredictionRecord{
		Frequencies: &Frequencies{SWPump: 55, FWPump: 55, Fan: 55},
		Confidence:  0.4,
		Timestamp:   snap.Timestamp,
	}

	decision := ctrl.Decide(snap, pred)

	assert.NotContains(t, decision.Rules, RuleBasePrediction)
	assert.Contains(t, decision.Rules, RuleBaseCold)
}

func TestDecideStalePredictionIgnored(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	pred := &PredictionRecord{
		Frequencies: &Frequencies{SWPump: 55, FWPump: 55, Fan: 55},
		Confidence:  0.9,
		Timestamp:   snap.Timestamp.Add(-3 * time.Minute),
	}

	decision := ctrl.Decide(snap, pred)

	assert.NotContains(t, decision.Rules, RuleBasePrediction)
}

func TestDecideHysteresisSuppressesSmallChange(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	ctrl.Decide(benignSnapshot(clock.now(), 60), nil)

	clock.advance(2 * time.Second)
	snap := benignSnapshot(clock.now(), 60)
	snap.FWOutlet = 35.05 // demands a change well under 0.5 Hz

	decision := ctrl.Decide(snap, nil)

	assert.Contains(t, decision.Rules, RuleHysteresisFW)
	assert.InDelta(t, 40.0, decision.Frequencies.FWPump, 1e-9)
}

func TestDecideSteadyStateIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	first := ctrl.Decide(benignSnapshot(clock.now(), 60), nil)
	clock.advance(2 * time.Second)
	second := ctrl.Decide(benignSnapshot(clock.now(), 60), nil)

	assert.Equal(t, first.Frequencies, second.Frequencies)
	assert.Equal(t, first.Counts, second.Counts)
}

func TestDecidePumpCountsStayEqualAcrossLoads(t *testing.T) {
	clock := newFakeClock()
	ctrl, registry := newTestController(t, clock)

	for _, load := range []float64{10, 25, 40, 60, 80, 95} {
		clock.advance(2 * time.Second)
		decision := ctrl.Decide(benignSnapshot(clock.now(), load), nil)

		assert.Equal(t, decision.Counts.SWPump, decision.Counts.FWPump, "load %.0f", load)
		assert.Equal(t,
			registry.RunningCount(equipment.GroupSWPump),
			registry.RunningCount(equipment.GroupFWPump),
			"load %.0f", load)
	}
}

func TestDecideBandCorrectionRaisesSWPumps(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	snap := benignSnapshot(clock.now(), 60)
	snap.CoolerOutA = 44.5 // warning band, +2.5 Hz on the previous 50

	decision := ctrl.Decide(snap, nil)

	assert.Contains(t, decision.Rules, "SW_BAND_H2")
	assert.InDelta(t, 52.5, decision.Frequencies.SWPump, 1e-9)
}

func TestDecideCriticalHoldBlocksRelaxation(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	// Freshwater inlet at Critical while the engine load argues for an
	// energy saving: the hold wins and the pumps are not slowed.
	snap := benignSnapshot(clock.now(), 25)
	snap.FWInlet = 45.5
	snap.FWOutlet = 36

	decision := ctrl.Decide(snap, nil)

	assert.Contains(t, decision.Rules, RuleCriticalHoldFW)
	// Cold-start PID at low-load gain scale 0.9: 40 + 3.6 + 0.18.
	assert.InDelta(t, 43.78, decision.Frequencies.FWPump, 1e-9)
}

func TestDecideRateLimitCapsStep(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	ctrl.Decide(benignSnapshot(clock.now(), 60), nil)

	// A prediction demanding a 10 Hz jump on the fans gets capped at
	// 120 Hz/min, which is 4 Hz on a 2 s cycle.
	clock.advance(2 * time.Second)
	snap := benignSnapshot(clock.now(), 60)
	pred := &PredictionRecord{
		Frequencies: &Frequencies{SWPump: 50, FWPump: 40, Fan: 50},
		Confidence:  0.9,
		Timestamp:   snap.Timestamp,
	}

	decision := ctrl.Decide(snap, pred)

	assert.Contains(t, decision.Rules, RuleRateLimitFan)
	assert.InDelta(t, 44.0, decision.Frequencies.Fan, 1e-9)
}

func TestDecideUpdatesStateOncePerCycle(t *testing.T) {
	clock := newFakeClock()
	ctrl, _ := newTestController(t, clock)

	decision := ctrl.Decide(benignSnapshot(clock.now(), 60), nil)

	state := ctrl.State()
	assert.True(t, state.Initialized)
	assert.Equal(t, decision.Frequencies, state.Prev)
}
