package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunyongman/coolctl/internal/equipment"
)

func TestCheckTemperature(t *testing.T) {
	constraints := DefaultConstraints()

	testCases := []struct {
		name  string
		kind  TempKind
		value float64
		level Level
	}{
		{"sea inlet normal", TempSeaInlet, 25, LevelNormal},
		{"cooler outlet warning", TempCoolerOutlet, 43.5, LevelWarning},
		{"cooler outlet critical", TempCoolerOutlet, 46, LevelCritical},
		{"cooler outlet emergency", TempCoolerOutlet, 49.2, LevelEmergency},
		{"fw inlet below warning", TempFWInlet, 41.9, LevelNormal},
		{"engine room critical", TempEngineRoom, 48, LevelCritical},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			level, msg, err := constraints.CheckTemperature(tc.kind, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.level, level)
			if tc.level == LevelNormal {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestCheckTemperatureUnknownKind(t *testing.T) {
	constraints := DefaultConstraints()

	_, _, err := constraints.CheckTemperature(TempKind("oil_sump"), 50)
	assert.Error(t, err)
}

func TestCheckPressure(t *testing.T) {
	constraints := DefaultConstraints()

	level, _ := constraints.CheckPressure(1.2)
	assert.Equal(t, LevelNormal, level)

	level, msg := constraints.CheckPressure(0.7)
	assert.Equal(t, LevelWarning, level)
	assert.NotEmpty(t, msg)

	level, msg = constraints.CheckPressure(0.4)
	assert.Equal(t, LevelEmergency, level)
	assert.NotEmpty(t, msg)
}

func TestCheckFrequency(t *testing.T) {
	constraints := DefaultConstraints()

	assert.NoError(t, constraints.CheckFrequency(40))
	assert.NoError(t, constraints.CheckFrequency(60))
	assert.Error(t, constraints.CheckFrequency(39.9))
	assert.Error(t, constraints.CheckFrequency(60.1))
}

func TestCheckFrequencyRate(t *testing.T) {
	constraints := DefaultConstraints()

	// 4 Hz over a 2 s cycle is exactly 120 Hz/min.
	assert.NoError(t, constraints.CheckFrequencyRate(50, 54, 2*time.Second))
	assert.Error(t, constraints.CheckFrequencyRate(50, 55, 2*time.Second))
	assert.Error(t, constraints.CheckFrequencyRate(50, 51, 0))
}

func TestCheckEquipmentCount(t *testing.T) {
	constraints := DefaultConstraints()

	assert.NoError(t, constraints.CheckEquipmentCount(equipment.GroupFan, 3, true))
	assert.Error(t, constraints.CheckEquipmentCount(equipment.GroupFan, 2, true))
	assert.NoError(t, constraints.CheckEquipmentCount(equipment.GroupFan, 2, false))
	assert.Error(t, constraints.CheckEquipmentCount(equipment.GroupFan, 5, true))
	assert.Error(t, constraints.CheckEquipmentCount(equipment.GroupSWPump, 0, false))
	assert.Error(t, constraints.CheckEquipmentCount(equipment.Group("thruster"), 1, false))
}

func TestClampCount(t *testing.T) {
	constraints := DefaultConstraints()

	assert.Equal(t, 3, constraints.ClampCount(equipment.GroupFan, 1, true))
	assert.Equal(t, 2, constraints.ClampCount(equipment.GroupFan, 1, false))
	assert.Equal(t, 4, constraints.ClampCount(equipment.GroupFan, 9, true))
	assert.Equal(t, 2, constraints.ClampCount(equipment.GroupSWPump, 2, true))
}

func TestClampFrequency(t *testing.T) {
	assert.Equal(t, 40.0, ClampFrequency(12))
	assert.Equal(t, 60.0, ClampFrequency(75))
	assert.Equal(t, 50.5, ClampFrequency(50.5))
}

func TestEmergencyOverridesFanTrip(t *testing.T) {
	constraints := DefaultConstraints()

	actions := constraints.EmergencyOverrides(Readings{
		CoolerOutletMax: 40,
		FWInlet:         40,
		EngineRoom:      47.5,
		PressureBar:     1.1,
	})

	require.Len(t, actions, 1)
	assert.Equal(t, equipment.GroupFan, actions[0].Group)
	assert.Equal(t, MaxFrequencyHz, actions[0].FrequencyHz)
	assert.Equal(t, RuleEmergencyFan, actions[0].RuleID)
}

func TestEmergencyOverridesLowPressure(t *testing.T) {
	constraints := DefaultConstraints()

	actions := constraints.EmergencyOverrides(Readings{PressureBar: 0.4})

	require.Len(t, actions, 1)
	assert.Equal(t, equipment.GroupSWPump, actions[0].Group)
	assert.Equal(t, RuleEmergencyPressure, actions[0].RuleID)
}

func TestEmergencyOverridesOneActionPerGroup(t *testing.T) {
	constraints := DefaultConstraints()

	// Cooler outlet and pressure both trip the seawater pumps; only the
	// first finding is reported for the group.
	actions := constraints.EmergencyOverrides(Readings{
		CoolerOutletMax: 49.5,
		PressureBar:     0.3,
	})

	require.Len(t, actions, 1)
	assert.Equal(t, equipment.GroupSWPump, actions[0].Group)
	assert.Equal(t, RuleEmergencySWTemp, actions[0].RuleID)
}

func TestEmergencyOverridesAllNormal(t *testing.T) {
	constraints := DefaultConstraints()

	actions := constraints.EmergencyOverrides(Readings{
		CoolerOutletMax: 38,
		FWInlet:         38,
		EngineRoom:      42,
		PressureBar:     1.0,
	})

	assert.Empty(t, actions)
}
