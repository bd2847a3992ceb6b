package engine

import (
	"context"
	"time"

	"github.com/chunyongman/coolctl/internal/controller"
	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/logger"
	"github.com/chunyongman/coolctl/internal/metrics"
	"github.com/chunyongman/coolctl/internal/redundancy"
	"github.com/chunyongman/coolctl/internal/telemetry"
)

// SensorSource is the field-bus side the engine reads from.
type SensorSource interface {
	Read(ctx context.Context) (controller.SensorSnapshot, error)
}

// ActuatorSink is the field-bus side the engine writes decisions to.
type ActuatorSink interface {
	Apply(ctx context.Context, decision controller.ControlDecision) error
}

// PredictionSource hands out the most recent ML prediction, or nil when
// none is available. The engine treats nil as a normal condition.
type PredictionSource interface {
	Latest() *controller.PredictionRecord
}

// Config holds the engine's timing.
type Config struct {
	CycleInterval     time.Duration
	HealthInterval    time.Duration
	HeartbeatInterval time.Duration
	SensorTimeout     time.Duration
	ActuatorTimeout   time.Duration
	Monitor           bool // compute decisions without actuating
}

// Engine runs the periodic control task, the redundancy health check and
// the heartbeat emitter. The tasks share nothing but the controller,
// the redundancy manager and the last published records; no task blocks
// waiting on another within a cycle.
type Engine struct {
	cfg         Config
	ctrl        *controller.Controller
	red         *redundancy.Manager
	source      SensorSource
	sink        ActuatorSink
	predictions PredictionSource
	collector   telemetry.Collector
	mets        *metrics.Metrics

	lastSnapshot controller.SensorSnapshot
	haveSnapshot bool
	lastDecision controller.ControlDecision
	haveDecision bool
}

// New wires the engine. predictions, collector and mets may be nil.
func New(cfg Config, ctrl *controller.Controller, red *redundancy.Manager, source SensorSource, sink ActuatorSink, predictions PredictionSource, collector telemetry.Collector, mets *metrics.Metrics) *Engine {
	if collector == nil {
		collector = telemetry.Noop()
	}

	return &Engine{
		cfg:         cfg,
		ctrl:        ctrl,
		red:         red,
		source:      source,
		sink:        sink,
		predictions: predictions,
		collector:   collector,
		mets:        mets,
	}
}

// Run drives all three periodic tasks until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.CycleInterval <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, e.cfg.CycleInterval.String())
	}

	cycleTicker := time.NewTicker(e.cfg.CycleInterval)
	defer cycleTicker.Stop()
	healthTicker := time.NewTicker(e.cfg.HealthInterval)
	defer healthTicker.Stop()
	heartbeatTicker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	logger.Info().
		Dur("cycle", e.cfg.CycleInterval).
		Dur("health", e.cfg.HealthInterval).
		Bool("monitor", e.cfg.Monitor).
		Msg("Control loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeatTicker.C:
			e.red.TouchPrimary()
		case <-healthTicker.C:
			e.healthCheck()
		case <-cycleTicker.C:
			e.cycle(ctx)
		}
	}
}

// healthCheck runs one redundancy tick and publishes the authority.
func (e *Engine) healthCheck() {
	before := e.red.Authority()
	after := e.red.Check()
	if e.mets != nil {
		e.mets.SetAuthority(string(after))
		if after != before {
			e.mets.Failovers.Inc()
		}
	}
}

// cycle runs one control cycle: bounded-timeout sensor read, decision,
// bounded-timeout actuation, telemetry. An overrun is flagged and the
// next tick is not delayed.
func (e *Engine) cycle(ctx context.Context) {
	started := time.Now()

	snap, ok := e.readSensors(ctx)
	if !ok {
		return
	}

	var pred *controller.PredictionRecord
	if e.predictions != nil {
		pred = e.predictions.Latest()
	}
	if pred == nil && e.mets != nil {
		e.mets.PredictionFallbacks.Inc()
	}

	decision := e.ctrl.Decide(snap, pred)

	authority := e.red.Authority()
	switch {
	case authority != redundancy.AuthorityPrimary:
		// Backup: the PLC drives. Fail-safe: hold the last safe
		// state. Either way this side does not actuate.
		logger.Debug().Str("authority", string(authority)).Msg("Decision computed but not actuated")
	case e.cfg.Monitor:
		logger.Info().
			Float64("sw_hz", decision.Frequencies.SWPump).
			Float64("fw_hz", decision.Frequencies.FWPump).
			Float64("fan_hz", decision.Frequencies.Fan).
			Strs("rules", decision.Rules).
			Msg("Monitor mode decision")
	default:
		e.actuate(ctx, decision)
	}

	e.lastDecision = decision
	e.haveDecision = true
	e.publish(ctx, snap, decision)

	elapsed := time.Since(started)
	if e.mets != nil {
		e.mets.CycleDuration.Observe(elapsed.Seconds())
	}
	if elapsed > e.cfg.CycleInterval {
		// Overruns are logged and counted, never silently dropped;
		// the decision above was still applied.
		logger.ErrorWithCode(errors.New().WithData(errors.ErrCycleOverrun, elapsed.String())).
			Msg("Cycle exceeded its budget")
		if e.mets != nil {
			e.mets.CycleOverruns.Inc()
		}
	}
}

// readSensors reads with a bounded timeout, falling back to the previous
// snapshot on failure. Persistent failures surface through the heartbeat
// timeout, not here.
func (e *Engine) readSensors(ctx context.Context) (controller.SensorSnapshot, bool) {
	readCtx, cancel := context.WithTimeout(ctx, e.cfg.SensorTimeout)
	defer cancel()

	snap, err := e.source.Read(readCtx)
	if err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrSensorRead, err)).Msg("Sensor read failed")
		if !e.haveSnapshot {
			return controller.SensorSnapshot{}, false
		}
		snap = e.lastSnapshot
		snap.Timestamp = time.Now()
	}

	e.lastSnapshot = snap
	e.haveSnapshot = true

	return snap, true
}

// actuate writes the decision with a bounded timeout. A successful
// round trip doubles as proof the PLC side is alive.
func (e *Engine) actuate(ctx context.Context, decision controller.ControlDecision) {
	writeCtx, cancel := context.WithTimeout(ctx, e.cfg.ActuatorTimeout)
	defer cancel()

	if err := e.sink.Apply(writeCtx, decision); err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrActuatorWrite, err)).Msg("Actuator write failed")
		return
	}

	e.red.TouchBackup()
}

// publish forwards the cycle to telemetry and metrics.
func (e *Engine) publish(ctx context.Context, snap controller.SensorSnapshot, decision controller.ControlDecision) {
	if e.mets != nil {
		e.mets.ObserveDecision(snap, decision)
		if decision.SafetyOverride {
			e.mets.SafetyOverrides.Inc()
		}
	}

	record := telemetry.CycleRecord{
		Timestamp:      decision.Timestamp,
		SWPumpHz:       decision.Frequencies.SWPump,
		FWPumpHz:       decision.Frequencies.FWPump,
		FanHz:          decision.Frequencies.Fan,
		SWPumpCount:    decision.Counts.SWPump,
		FWPumpCount:    decision.Counts.FWPump,
		FanCount:       decision.Counts.Fan,
		SafetyOverride: decision.SafetyOverride,
		Rules:          decision.Rules,
		Reason:         decision.Reason,
		Authority:      string(e.red.Authority()),
		FWOutlet:       snap.FWOutlet,
		EngineRoom:     snap.EngineRoom,
		SeaInlet:       snap.SeaInlet,
		EngineLoad:     snap.EngineLoad,
	}
	if err := e.collector.Record(ctx, &record); err != nil {
		logger.Error().Err(err).Msg("Failed to record telemetry")
	}
}

// LastDecision returns the most recent decision, for shutdown handling
// and monitoring.
func (e *Engine) LastDecision() (controller.ControlDecision, bool) {
	return e.lastDecision, e.haveDecision
}
