package safety

import (
	"fmt"
	"time"

	"github.com/chunyongman/coolctl/internal/equipment"
	"github.com/chunyongman/coolctl/internal/errors"
)

// Frequency envelope every actuator group shares. Learned or rule-based
// logic must never command outside it.
const (
	MinFrequencyHz = 40.0
	MaxFrequencyHz = 60.0
)

// Level grades how far a measured quantity is from its physical limit.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "normal"
	}
}

// TempKind names a monitored temperature.
type TempKind string

const (
	TempSeaInlet     TempKind = "sea_inlet"     // T1
	TempCoolerOutlet TempKind = "cooler_outlet" // T2/T3
	TempFWInlet      TempKind = "fw_inlet"      // T4
	TempFWOutlet     TempKind = "fw_outlet"     // T5
	TempEngineRoom   TempKind = "engine_room"   // T6
	TempOutsideAir   TempKind = "outside_air"   // T7
)

// TempLimits are the grading thresholds for one temperature kind, in °C.
type TempLimits struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// CountLimits bound how many units of a group may run.
type CountLimits struct {
	Min           int
	MinWithEngine int
	Max           int
}

// ConstraintSet is the immutable limit configuration loaded at startup.
type ConstraintSet struct {
	Temperatures map[TempKind]TempLimits
	Counts       map[equipment.Group]CountLimits

	// PX1, seawater discharge pressure, bar
	PressureWarningBar   float64
	PressureEmergencyBar float64

	// Emergency override trip points, per actuator group. These sit
	// below the absolute physical limits so the forced action lands
	// before the limit is reached.
	CoolerOutletForceHz float64 // T2/T3 ≥ this → SW pumps to max
	FWInletForceHz      float64 // T4 ≥ this → FW pumps to max
	EngineRoomForceHz   float64 // T6 ≥ this → fans to max

	MaxRateHzPerMin float64
	HysteresisHz    float64
}

// DefaultConstraints returns the shipboard limit table.
func DefaultConstraints() ConstraintSet {
	return ConstraintSet{
		Temperatures: map[TempKind]TempLimits{
			TempSeaInlet:     {Warning: 32, Critical: 36, Emergency: 38},
			TempCoolerOutlet: {Warning: 43, Critical: 46, Emergency: 49},
			TempFWInlet:      {Warning: 42, Critical: 45, Emergency: 48},
			TempFWOutlet:     {Warning: 38, Critical: 42, Emergency: 45},
			TempEngineRoom:   {Warning: 45, Critical: 48, Emergency: 50},
			TempOutsideAir:   {Warning: 40, Critical: 45, Emergency: 50},
		},
		Counts: map[equipment.Group]CountLimits{
			equipment.GroupSWPump: {Min: 1, MinWithEngine: 2, Max: 3},
			equipment.GroupFWPump: {Min: 1, MinWithEngine: 2, Max: 3},
			equipment.GroupFan:    {Min: 2, MinWithEngine: 3, Max: 4},
		},
		PressureWarningBar:   0.8,
		PressureEmergencyBar: 0.5,
		CoolerOutletForceHz:  49,
		FWInletForceHz:       48,
		EngineRoomForceHz:    47,
		MaxRateHzPerMin:      120,
		HysteresisHz:         0.5,
	}
}

// CheckTemperature grades a reading against the limit table. The message
// is empty at LevelNormal.
func (c ConstraintSet) CheckTemperature(kind TempKind, value float64) (Level, string, error) {
	limits, ok := c.Temperatures[kind]
	if !ok {
		return LevelNormal, "", errors.New().WithData(errors.ErrUnknownSensorKind, string(kind))
	}

	switch {
	case value >= limits.Emergency:
		return LevelEmergency, fmt.Sprintf("%s %.1f°C at or above emergency limit %.1f°C", kind, value, limits.Emergency), nil
	case value >= limits.Critical:
		return LevelCritical, fmt.Sprintf("%s %.1f°C above critical limit %.1f°C", kind, value, limits.Critical), nil
	case value >= limits.Warning:
		return LevelWarning, fmt.Sprintf("%s %.1f°C above warning limit %.1f°C", kind, value, limits.Warning), nil
	default:
		return LevelNormal, "", nil
	}
}

// CheckPressure grades the seawater discharge pressure. Low pressure is
// the dangerous direction: it means the coolers are being starved.
func (c ConstraintSet) CheckPressure(bar float64) (Level, string) {
	switch {
	case bar < c.PressureEmergencyBar:
		return LevelEmergency, fmt.Sprintf("discharge pressure %.2f bar below emergency limit %.2f bar", bar, c.PressureEmergencyBar)
	case bar < c.PressureWarningBar:
		return LevelWarning, fmt.Sprintf("discharge pressure %.2f bar below warning limit %.2f bar", bar, c.PressureWarningBar)
	default:
		return LevelNormal, ""
	}
}

// CheckFrequency rejects setpoints outside the drive envelope.
func (c ConstraintSet) CheckFrequency(hz float64) error {
	if hz < MinFrequencyHz || hz > MaxFrequencyHz {
		return errors.New().WithData(errors.ErrConstraintBreach,
			fmt.Sprintf("frequency %.1f Hz outside [%.0f, %.0f]", hz, MinFrequencyHz, MaxFrequencyHz))
	}

	return nil
}

// CheckFrequencyRate rejects a transition whose implied Hz/minute exceeds
// the configured ceiling.
func (c ConstraintSet) CheckFrequencyRate(prev, next float64, dt time.Duration) error {
	if dt <= 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, "non-positive dt")
	}

	rate := abs(next-prev) / dt.Minutes()
	if rate > c.MaxRateHzPerMin {
		return errors.New().WithData(errors.ErrConstraintBreach,
			fmt.Sprintf("frequency rate %.1f Hz/min exceeds %.1f Hz/min", rate, c.MaxRateHzPerMin))
	}

	return nil
}

// CheckEquipmentCount enforces the group minimum and maximum, with a
// higher minimum while the main engine is running.
func (c ConstraintSet) CheckEquipmentCount(group equipment.Group, count int, engineRunning bool) error {
	limits, ok := c.Counts[group]
	if !ok {
		return errors.New().WithData(errors.ErrInvalidArgument, string(group))
	}

	minCount := limits.Min
	if engineRunning {
		minCount = limits.MinWithEngine
	}

	if count < minCount || count > limits.Max {
		return errors.New().WithData(errors.ErrConstraintBreach,
			fmt.Sprintf("%s count %d outside [%d, %d]", group, count, minCount, limits.Max))
	}

	return nil
}

// MinCount returns the floor for a group under the given engine state.
func (c ConstraintSet) MinCount(group equipment.Group, engineRunning bool) int {
	limits := c.Counts[group]
	if engineRunning {
		return limits.MinWithEngine
	}

	return limits.Min
}

// MaxCount returns the ceiling for a group.
func (c ConstraintSet) MaxCount(group equipment.Group) int {
	return c.Counts[group].Max
}

// ClampFrequency pins a setpoint into the drive envelope.
func ClampFrequency(hz float64) float64 {
	if hz < MinFrequencyHz {
		return MinFrequencyHz
	}
	if hz > MaxFrequencyHz {
		return MaxFrequencyHz
	}

	return hz
}

// ClampCount pins a unit count into the group's allowed range.
func (c ConstraintSet) ClampCount(group equipment.Group, count int, engineRunning bool) int {
	minCount := c.MinCount(group, engineRunning)
	if count < minCount {
		return minCount
	}
	if maxCount := c.MaxCount(group); count > maxCount {
		return maxCount
	}

	return count
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}
