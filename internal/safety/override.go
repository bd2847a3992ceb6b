package safety

import (
	"fmt"

	"github.com/chunyongman/coolctl/internal/equipment"
)

// Rule identifiers emitted by the emergency override layer.
const (
	RuleEmergencySWTemp   = "EMERG_SW_TEMP"
	RuleEmergencyFWInlet  = "EMERG_FW_INLET"
	RuleEmergencyFan      = "EMERG_FAN_MAX"
	RuleEmergencyPressure = "EMERG_LOW_PRESS"
)

// Readings are the quantities the emergency layer reacts to.
type Readings struct {
	CoolerOutletMax float64 // hotter of T2/T3
	FWInlet         float64 // T4
	EngineRoom      float64 // T6
	PressureBar     float64 // PX1
}

// OverrideAction is a forced setpoint for one actuator group. The caller
// applies it; this layer only decides.
type OverrideAction struct {
	Group       equipment.Group
	FrequencyHz float64
	RuleID      string
	Reason      string
}

// EmergencyOverrides returns the forced actions for any quantity at or
// beyond its trip point. Pure: no state is read or written. At most one
// action per group is returned; the most severe reason wins.
func (c ConstraintSet) EmergencyOverrides(r Readings) []OverrideAction {
	var actions []OverrideAction
	seen := make(map[equipment.Group]bool)

	add := func(group equipment.Group, rule, reason string) {
		if seen[group] {
			return
		}
		seen[group] = true
		actions = append(actions, OverrideAction{
			Group:       group,
			FrequencyHz: MaxFrequencyHz,
			RuleID:      rule,
			Reason:      reason,
		})
	}

	if r.CoolerOutletMax >= c.CoolerOutletForceHz {
		add(equipment.GroupSWPump, RuleEmergencySWTemp,
			fmt.Sprintf("cooler outlet %.1f°C ≥ %.1f°C, seawater pumps forced to maximum", r.CoolerOutletMax, c.CoolerOutletForceHz))
	}
	if r.PressureBar > 0 && r.PressureBar < c.PressureEmergencyBar {
		add(equipment.GroupSWPump, RuleEmergencyPressure,
			fmt.Sprintf("discharge pressure %.2f bar < %.2f bar, seawater pumps forced to maximum", r.PressureBar, c.PressureEmergencyBar))
	}
	if r.FWInlet >= c.FWInletForceHz {
		add(equipment.GroupFWPump, RuleEmergencyFWInlet,
			fmt.Sprintf("freshwater inlet %.1f°C ≥ %.1f°C, freshwater pumps forced to maximum", r.FWInlet, c.FWInletForceHz))
	}
	if r.EngineRoom >= c.EngineRoomForceHz {
		add(equipment.GroupFan, RuleEmergencyFan,
			fmt.Sprintf("engine room %.1f°C ≥ %.1f°C, fans forced to maximum", r.EngineRoom, c.EngineRoomForceHz))
	}

	return actions
}
