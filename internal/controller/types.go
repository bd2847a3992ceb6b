package controller

import (
	"time"

	"github.com/chunyongman/coolctl/internal/equipment"
)

// Engine load below this is treated as "main engine not running" for the
// count minimums.
const engineRunningLoad = 5.0

// SensorSnapshot is the read-only per-cycle input. Immutable once
// constructed; its lifetime is one control cycle.
type SensorSnapshot struct {
	SeaInlet    float64 // T1, °C
	CoolerOutA  float64 // T2, seawater-side cooler outlet, °C
	CoolerOutB  float64 // T3, seawater-side cooler outlet, °C
	FWInlet     float64 // T4, °C
	FWOutlet    float64 // T5, °C
	EngineRoom  float64 // T6, °C
	OutsideAir  float64 // T7, °C
	PressureBar float64 // PX1, seawater discharge pressure
	EngineLoad  float64 // % MCR
	Timestamp   time.Time
}

// CoolerOutletMax returns the hotter of the two seawater-side cooler
// outlets.
func (s SensorSnapshot) CoolerOutletMax() float64 {
	if s.CoolerOutA > s.CoolerOutB {
		return s.CoolerOutA
	}

	return s.CoolerOutB
}

// EngineRunning reports whether the main engine is turning.
func (s SensorSnapshot) EngineRunning() bool {
	return s.EngineLoad >= engineRunningLoad
}

// Frequencies holds one target frequency per actuator group, Hz.
type Frequencies struct {
	SWPump float64
	FWPump float64
	Fan    float64
}

// Get returns the frequency for a group.
func (f Frequencies) Get(group equipment.Group) float64 {
	switch group {
	case equipment.GroupSWPump:
		return f.SWPump
	case equipment.GroupFWPump:
		return f.FWPump
	default:
		return f.Fan
	}
}

// Set overwrites the frequency for a group.
func (f *Frequencies) Set(group equipment.Group, hz float64) {
	switch group {
	case equipment.GroupSWPump:
		f.SWPump = hz
	case equipment.GroupFWPump:
		f.FWPump = hz
	default:
		f.Fan = hz
	}
}

// Counts holds the active-unit count per actuator group.
type Counts struct {
	SWPump int
	FWPump int
	Fan    int
}

// ControlDecision is the output of one control cycle. Never mutated
// after creation; published to the actuation interface and to logging.
type ControlDecision struct {
	Frequencies    Frequencies
	Counts         Counts
	SafetyOverride bool
	Rules          []string // ordered identifiers of every applied rule
	Reason         string
	Timestamp      time.Time
}

// State carries the previous cycle's frequencies for hysteresis and rate
// limiting. Owned by the controller and updated exactly once per cycle,
// after the decision is finalized.
type State struct {
	Prev        Frequencies
	Initialized bool
}

// Forecast holds predicted values at the fixed horizons.
type Forecast struct {
	Min5  float64
	Min10 float64
	Min15 float64
}

// PredictionRecord is the optional input from the ML collaborator.
// Absence is a first-class nil; the controller falls back to its own
// baseline without error.
type PredictionRecord struct {
	Frequencies *Frequencies // suggested targets, optional
	FWInlet     Forecast     // predicted T4
	EngineRoom  Forecast     // predicted T6
	Confidence  float64      // [0,1]
	Timestamp   time.Time
}

// Usable reports whether the record may seed the baseline: present,
// confident enough and not stale.
func (p *PredictionRecord) Usable(minConfidence float64, now time.Time, maxAge time.Duration) bool {
	if p == nil {
		return false
	}
	if p.Confidence < minConfidence {
		return false
	}
	if maxAge > 0 && now.Sub(p.Timestamp) > maxAge {
		return false
	}

	return true
}
