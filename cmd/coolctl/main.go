package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chunyongman/coolctl/internal/config"
	"github.com/chunyongman/coolctl/internal/controller"
	"github.com/chunyongman/coolctl/internal/count"
	"github.com/chunyongman/coolctl/internal/engine"
	"github.com/chunyongman/coolctl/internal/equipment"
	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/logger"
	"github.com/chunyongman/coolctl/internal/metrics"
	"github.com/chunyongman/coolctl/internal/pidfile"
	"github.com/chunyongman/coolctl/internal/redundancy"
	"github.com/chunyongman/coolctl/internal/safety"
	"github.com/chunyongman/coolctl/internal/sim"
	"github.com/chunyongman/coolctl/internal/telemetry"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := config.LogLevel(cfg.LogLevel)
	logger.Init(level == config.LogLevelDebug, level == config.LogLevelInfo, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pidfile.Write(); err != nil {
		logger.FatalWithCode(errors.New().Wrap(errors.ErrInitFailed, err)).Msg("Failed to write PID file")
	}
	defer func() {
		if err := pidfile.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("Controller exited with error")
	}
}

func run(ctx context.Context) error {
	collector, err := telemetry.NewService(telemetry.DefaultConfig(cfg.Database, cfg.Telemetry))
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close telemetry")
		}
	}()

	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)
	if cfg.MetricsListen != "" {
		go metrics.Serve(ctx, cfg.MetricsListen, registry)
	}

	units, err := buildFleet()
	if err != nil {
		return err
	}

	if !cfg.Simulate {
		// Only the simulated plant is wired as a transport for now. The
		// shipboard field-bus adapter plugs in through the same engine
		// interfaces.
		return errors.New().WithMessage(errors.ErrUnavailable, "field-bus transport not configured, run with --simulate")
	}
	plant := sim.New(sim.DefaultConfig(), nil)

	ctrlCfg := controller.DefaultConfig()
	ctrlCfg.FWSetpoint = cfg.FWOutletSetpoint
	ctrlCfg.RoomSetpoint = cfg.RoomSetpoint
	ctrlCfg.CycleInterval = cfg.CycleInterval()

	ctrl := controller.NewController(ctrlCfg, safety.DefaultConstraints(), count.DefaultConfig(), units, nil)
	red := redundancy.NewManager(redundancy.DefaultConfig(), nil)

	eng := engine.New(engine.Config{
		CycleInterval:     cfg.CycleInterval(),
		HealthInterval:    cfg.HealthIntervalDuration(),
		HeartbeatInterval: cfg.HeartbeatIntervalDuration(),
		SensorTimeout:     cfg.SensorTimeout(),
		ActuatorTimeout:   cfg.ActuatorTimeout(),
		Monitor:           cfg.Monitor,
	}, ctrl, red, plant, plant, nil, collector, mets)

	err = eng.Run(ctx)
	holdLastSafeState(eng, plant)

	return err
}

// holdLastSafeState re-applies the last decision on shutdown so the
// drives are left on a known setpoint rather than whatever a partial
// cycle wrote.
func holdLastSafeState(eng *engine.Engine, sink engine.ActuatorSink) {
	decision, ok := eng.LastDecision()
	if !ok {
		return
	}

	applyCtx, cancel := context.WithTimeout(context.Background(), cfg.ActuatorTimeout())
	defer cancel()

	if err := sink.Apply(applyCtx, decision); err != nil {
		logger.Error().Err(err).Msg("Failed to hold last safe state on shutdown")
		return
	}

	logger.Info().
		Float64("sw_hz", decision.Frequencies.SWPump).
		Float64("fw_hz", decision.Frequencies.FWPump).
		Float64("fan_hz", decision.Frequencies.Fan).
		Msg("Holding last safe state")
}

// buildFleet registers the shipboard units and brings up the minimum
// running set for an engine under way.
func buildFleet() (*equipment.Registry, error) {
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
		if err := registry.Start(id); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
