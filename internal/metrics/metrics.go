package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chunyongman/coolctl/internal/controller"
	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/logger"
)

// Metrics exposes the control loop to monitoring collaborators.
type Metrics struct {
	CycleDuration       prometheus.Histogram
	SafetyOverrides     prometheus.Counter
	Failovers           prometheus.Counter
	CycleOverruns       prometheus.Counter
	PredictionFallbacks prometheus.Counter

	frequency   *prometheus.GaugeVec
	unitCount   *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	authority   *prometheus.GaugeVec
}

// New registers the full metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coolctl_cycle_duration_seconds",
			Help:    "Duration of one control cycle.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		SafetyOverrides: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolctl_safety_overrides_total",
			Help: "Cycles in which the safety layer forced a setpoint.",
		}),
		Failovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolctl_failovers_total",
			Help: "Control authority transitions.",
		}),
		CycleOverruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolctl_cycle_overruns_total",
			Help: "Cycles that exceeded their budget.",
		}),
		PredictionFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolctl_prediction_fallbacks_total",
			Help: "Cycles decided without a usable prediction.",
		}),
		frequency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coolctl_frequency_hz",
			Help: "Commanded frequency per actuator group.",
		}, []string{"group"}),
		unitCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coolctl_unit_count",
			Help: "Active units per actuator group.",
		}, []string{"group"}),
		temperature: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coolctl_temperature_celsius",
			Help: "Key temperatures from the last snapshot.",
		}, []string{"sensor"}),
		authority: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coolctl_control_authority",
			Help: "1 for the active control authority, 0 otherwise.",
		}, []string{"authority"}),
	}
}

// ObserveDecision publishes the per-cycle gauges.
func (m *Metrics) ObserveDecision(snap controller.SensorSnapshot, decision controller.ControlDecision) {
	m.frequency.WithLabelValues("sw_pump").Set(decision.Frequencies.SWPump)
	m.frequency.WithLabelValues("fw_pump").Set(decision.Frequencies.FWPump)
	m.frequency.WithLabelValues("er_fan").Set(decision.Frequencies.Fan)

	m.unitCount.WithLabelValues("sw_pump").Set(float64(decision.Counts.SWPump))
	m.unitCount.WithLabelValues("fw_pump").Set(float64(decision.Counts.FWPump))
	m.unitCount.WithLabelValues("er_fan").Set(float64(decision.Counts.Fan))

	m.temperature.WithLabelValues("sea_inlet").Set(snap.SeaInlet)
	m.temperature.WithLabelValues("fw_outlet").Set(snap.FWOutlet)
	m.temperature.WithLabelValues("engine_room").Set(snap.EngineRoom)
}

// SetAuthority publishes the current control authority as a one-hot
// gauge.
func (m *Metrics) SetAuthority(authority string) {
	for _, a := range []string{"primary", "backup", "fail_safe"} {
		value := 0.0
		if a == authority {
			value = 1.0
		}
		m.authority.WithLabelValues(a).Set(value)
	}
}

// Serve exposes /metrics on addr until ctx is canceled. Intended to be
// run in its own goroutine; errors are logged, not fatal, since the
// control loop must survive without observability.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Metrics endpoint failed")
	}
}
