package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunyongman/coolctl/internal/controller"
	"github.com/chunyongman/coolctl/internal/count"
	"github.com/chunyongman/coolctl/internal/equipment"
	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/redundancy"
	"github.com/chunyongman/coolctl/internal/safety"
)

type stubSource struct {
	snap controller.SensorSnapshot
	err  error
}

func (s *stubSource) Read(context.Context) (controller.SensorSnapshot, error) {
	return s.snap, s.err
}

type stubSink struct {
	applied []controller.ControlDecision
}

func (s *stubSink) Apply(_ context.Context, decision controller.ControlDecision) error {
	s.applied = append(s.applied, decision)
	return nil
}

func newCycleFixture(t *testing.T) (*Engine, *stubSource, *stubSink) {
	t.Helper()

	registry := equipment.NewRegistry(nil)
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

	ctrl := controller.NewController(controller.DefaultConfig(), safety.DefaultConstraints(), count.DefaultConfig(), registry, nil)
	red := redundancy.NewManager(redundancy.DefaultConfig(), nil)

	source := &stubSource{
		snap: controller.SensorSnapshot{
			SeaInlet:    25,
			CoolerOutA:  40,
			CoolerOutB:  39.6,
			FWInlet:     39,
			FWOutlet:    35,
			EngineRoom:  43,
			OutsideAir:  30,
			PressureBar: 1.0,
			EngineLoad:  60,
			Timestamp:   time.Now(),
		},
	}
	sink := &stubSink{}

	e := New(Config{
		CycleInterval:   2 * time.Second,
		SensorTimeout:   100 * time.Millisecond,
		ActuatorTimeout: 100 * time.Millisecond,
	}, ctrl, red, source, sink, nil, nil, nil)

	return e, source, sink
}

func TestCycleEmergencyOverrideFiresOnFirstHotReading(t *testing.T) {
	e, source, sink := newCycleFixture(t)
	ctx := context.Background()

	// Several benign cycles build up reading history.
	for i := 0; i < 4; i++ {
		e.cycle(ctx)
	}

	// A single reading over the engine-room trip point must force the
	// fans on the very same cycle; no history may soften it.
	source.snap.EngineRoom = 50
	e.cycle(ctx)

	decision, ok := e.LastDecision()
	require.True(t, ok)
	assert.True(t, decision.SafetyOverride)
	assert.Equal(t, safety.MaxFrequencyHz, decision.Frequencies.Fan)
	assert.Contains(t, decision.Rules, safety.RuleEmergencyFan)
	require.NotEmpty(t, sink.applied)
	assert.Equal(t, safety.MaxFrequencyHz, sink.applied[len(sink.applied)-1].Frequencies.Fan)
}

func TestReadSensorsFallsBackToPreviousSnapshot(t *testing.T) {
	source := &stubSource{
		snap: controller.SensorSnapshot{EngineRoom: 44, Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	e := New(Config{
		CycleInterval: 2 * time.Second,
		SensorTimeout: 100 * time.Millisecond,
	}, nil, nil, source, nil, nil, nil, nil)

	first, ok := e.readSensors(context.Background())
	require.True(t, ok)
	assert.Equal(t, 44.0, first.EngineRoom)

	// The bus drops out: the previous values carry the cycle, with a
	// fresh timestamp.
	source.err = errors.New().New(errors.ErrSensorRead)
	second, ok := e.readSensors(context.Background())
	require.True(t, ok)
	assert.Equal(t, 44.0, second.EngineRoom)
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestReadSensorsFailsWithoutHistory(t *testing.T) {
	source := &stubSource{err: errors.New().New(errors.ErrSensorRead)}
	e := New(Config{
		CycleInterval: 2 * time.Second,
		SensorTimeout: 100 * time.Millisecond,
	}, nil, nil, source, nil, nil, nil, nil)

	_, ok := e.readSensors(context.Background())
	assert.False(t, ok)
}

func TestRunRejectsInvalidInterval(t *testing.T) {
	e := New(Config{}, nil, nil, &stubSource{}, nil, nil, nil, nil)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))
}
