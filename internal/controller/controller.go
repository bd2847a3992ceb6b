package controller

import (
	"strings"
	"time"

	"github.com/chunyongman/coolctl/internal/count"
	"github.com/chunyongman/coolctl/internal/equipment"
	"github.com/chunyongman/coolctl/internal/logger"
	"github.com/chunyongman/coolctl/internal/pidloop"
	"github.com/chunyongman/coolctl/internal/safety"
)

// Config tunes the integrated controller.
type Config struct {
	FWSetpoint       float64 // T5 target, °C
	RoomSetpoint     float64 // T6 target, °C
	DefaultFrequency float64 // cold-start frequency, Hz
	MinConfidence    float64 // predictions below this are ignored
	PredictionMaxAge time.Duration
	CycleInterval    time.Duration
}

// DefaultConfig returns the shipboard tuning.
func DefaultConfig() Config {
	return Config{
		FWSetpoint:       35,
		RoomSetpoint:     43,
		DefaultFrequency: 50,
		MinConfidence:    0.6,
		PredictionMaxAge: 2 * time.Minute,
		CycleInterval:    2 * time.Second,
	}
}

// Controller composes the safety layer, the optional external
// prediction, the fine-tuning rules and the count layer into one
// per-cycle decision. Priority order within a cycle is a correctness
// invariant: safety, then optimization, then count control.
type Controller struct {
	cfg         Config
	constraints safety.ConstraintSet
	fwLoop      *pidloop.Loop
	roomLoop    *pidloop.Loop
	sched       pidloop.Scheduler
	counts      *count.Controller
	state       State
}

// NewController builds the decision pipeline on top of a runtime
// registry. A nil now falls back to time.Now for the count layer's
// dwell timers.
func NewController(cfg Config, constraints safety.ConstraintSet, countCfg count.Config, registry *equipment.Registry, now func() time.Time) *Controller {
	fwLoop := pidloop.New(pidloop.Config{
		Base:        pidloop.Gains{Kp: 4, Ki: 0.2, Kd: 1},
		Setpoint:    cfg.FWSetpoint,
		OutputMin:   safety.MinFrequencyHz,
		OutputMax:   safety.MaxFrequencyHz,
		IntegralMax: 60,
		SlewHzPerS:  2,
	})
	roomLoop := pidloop.New(pidloop.Config{
		Base:        pidloop.Gains{Kp: 3, Ki: 0.15, Kd: 0.8},
		Setpoint:    cfg.RoomSetpoint,
		OutputMin:   safety.MinFrequencyHz,
		OutputMax:   safety.MaxFrequencyHz,
		IntegralMax: 80,
		SlewHzPerS:  2,
	})

	return &Controller{
		cfg:         cfg,
		constraints: constraints,
		fwLoop:      fwLoop,
		roomLoop:    roomLoop,
		sched:       pidloop.NewScheduler(),
		counts:      count.NewController(countCfg, constraints, registry, now),
	}
}

// Reset clears the PID loop state after a manual intervention or a
// control-mode change. Configured gains are untouched.
func (c *Controller) Reset() {
	c.fwLoop.Reset()
	c.roomLoop.Reset()
}

// State returns the previous cycle's frequencies.
func (c *Controller) State() State {
	return c.state
}

// Decide runs one control cycle. pred may be nil; an absent or
// low-confidence prediction falls back to the controller's own baseline
// without error. The internal state is updated exactly once, after the
// decision is finalized.
func (c *Controller) Decide(snap SensorSnapshot, pred *PredictionRecord) ControlDecision {
	var rules []string
	var reasons []string

	engineRunning := snap.EngineRunning()
	prev := c.prevFrequencies()
	usablePred := pred.Usable(c.cfg.MinConfidence, snap.Timestamp, c.cfg.PredictionMaxAge)

	// 1. Baseline: prediction if present and valid, else the adaptive
	// PID loops seeded from the previous cycle.
	freqs := c.baseline(snap, pred, usablePred, prev, &rules)

	// 2. Safety layer. Any emergency finding finalizes its actuator
	// group for this cycle; other groups proceed independently.
	finalized := make(map[equipment.Group]bool)
	safetyOverride := false
	for _, action := range c.constraints.EmergencyOverrides(safety.Readings{
		CoolerOutletMax: snap.CoolerOutletMax(),
		FWInlet:         snap.FWInlet,
		EngineRoom:      snap.EngineRoom,
		PressureBar:     snap.PressureBar,
	}) {
		freqs.Set(action.Group, action.FrequencyHz)
		finalized[action.Group] = true
		safetyOverride = true
		rules = append(rules, action.RuleID)
		reasons = append(reasons, action.Reason)
	}

	critHold := c.criticalHolds(snap, &reasons)

	// 3. Fine-tuning rules for every group the safety layer left open.
	for _, group := range []equipment.Group{equipment.GroupSWPump, equipment.GroupFWPump, equipment.GroupFan} {
		if finalized[group] {
			continue
		}
		freqs.Set(group, c.fineTune(group, snap, pred, usablePred, freqs.Get(group), prev.Get(group), critHold[group], &rules, &reasons))
	}

	// 4. Count layer, fed with the frequencies the rules produced.
	pumps := c.counts.DecidePumps(snap.EngineLoad, engineRunning)
	rules = append(rules, pumps.RuleID)
	reasons = append(reasons, pumps.Reason)

	fanIn := count.FanInput{
		RoomTemp:      snap.EngineRoom,
		FrequencyHz:   freqs.Fan,
		EngineRunning: engineRunning,
		SafetyForced:  finalized[equipment.GroupFan],
	}
	if usablePred {
		fanIn.ForecastRoom = pred.EngineRoom.Min5
		fanIn.HasForecast = true
	}
	fans := c.counts.DecideFans(fanIn)
	if fans.Changed {
		rules = append(rules, fans.RuleID)
		reasons = append(reasons, fans.Reason)
		// The re-based frequency never relaxes a safety-forced value.
		if !finalized[equipment.GroupFan] {
			freqs.Fan = fans.FrequencyHz
		}
	}

	decision := ControlDecision{
		Frequencies:    freqs,
		Counts:         Counts{SWPump: pumps.Count, FWPump: pumps.Count, Fan: fans.Count},
		SafetyOverride: safetyOverride,
		Rules:          rules,
		Reason:         joinReasons(reasons),
		Timestamp:      snap.Timestamp,
	}

	// 5. Persist the frequencies for the next cycle's hysteresis and
	// rate limiting. Single update point, after finalization.
	c.state.Prev = freqs
	c.state.Initialized = true

	if safetyOverride {
		logger.Warn().Strs("rules", rules).Str("reason", decision.Reason).Msg("Safety override active")
	}

	return decision
}

func (c *Controller) prevFrequencies() Frequencies {
	if c.state.Initialized {
		return c.state.Prev
	}

	d := c.cfg.DefaultFrequency

	return Frequencies{SWPump: d, FWPump: d, Fan: d}
}

func (c *Controller) baseline(snap SensorSnapshot, pred *PredictionRecord, usablePred bool, prev Frequencies, rules *[]string) Frequencies {
	if usablePred && pred.Frequencies != nil {
		*rules = append(*rules, RuleBasePrediction)

		return Frequencies{
			SWPump: safety.ClampFrequency(pred.Frequencies.SWPump),
			FWPump: safety.ClampFrequency(pred.Frequencies.FWPump),
			Fan:    safety.ClampFrequency(pred.Frequencies.Fan),
		}
	}

	scale := c.sched.Factor(snap.EngineLoad, snap.SeaInlet)
	freqs := Frequencies{
		SWPump: prev.SWPump,
		FWPump: c.fwLoop.Compute(snap.FWOutlet, scale, snap.Timestamp),
		Fan:    c.roomLoop.Compute(snap.EngineRoom, scale, snap.Timestamp),
	}

	if c.state.Initialized {
		*rules = append(*rules, RuleBasePID)
	} else {
		*rules = append(*rules, RuleBaseCold)
	}

	return freqs
}

// criticalHolds marks groups whose related temperature is at Critical:
// optimization may not lower their frequency this cycle.
func (c *Controller) criticalHolds(snap SensorSnapshot, reasons *[]string) map[equipment.Group]bool {
	holds := make(map[equipment.Group]bool)

	grade := func(kind safety.TempKind, value float64, group equipment.Group) {
		level, msg, err := c.constraints.CheckTemperature(kind, value)
		if err != nil {
			logger.Error().Err(err).Msg("Temperature check failed")
			return
		}
		if level >= safety.LevelCritical {
			holds[group] = true
			*reasons = append(*reasons, msg)
		}
	}

	grade(safety.TempCoolerOutlet, snap.CoolerOutletMax(), equipment.GroupSWPump)
	grade(safety.TempFWInlet, snap.FWInlet, equipment.GroupFWPump)
	grade(safety.TempFWOutlet, snap.FWOutlet, equipment.GroupFWPump)
	grade(safety.TempEngineRoom, snap.EngineRoom, equipment.GroupFan)

	return holds
}

// fineTune applies the rule tiers to one group in fixed order: band
// correction, preemptive prediction, load correction, region correction,
// then rate limiting and hysteresis against the previous cycle.
func (c *Controller) fineTune(group equipment.Group, snap SensorSnapshot, pred *PredictionRecord, usablePred bool, baseHz, prevHz float64, critHold bool, rules *[]string, reasons *[]string) float64 {
	target := baseHz

	if corr, ok := bandCorrection(group, snap, c.cfg.FWSetpoint, c.cfg.RoomSetpoint); ok {
		target += corr.DeltaHz
		*rules = append(*rules, corr.RuleID)
		*reasons = append(*reasons, corr.Reason)
	}

	if group == equipment.GroupSWPump {
		if usablePred {
			if corr, ok := preemptCorrection(snap, pred, c.constraints.FWInletForceHz); ok {
				target += corr.DeltaHz
				*rules = append(*rules, corr.RuleID)
				*reasons = append(*reasons, corr.Reason)
			}
		}
		if corr, ok := regionCorrection(baseHz, snap.SeaInlet); ok {
			target += corr.DeltaHz
			*rules = append(*rules, corr.RuleID)
			*reasons = append(*reasons, corr.Reason)
		}
	}

	if group == equipment.GroupSWPump || group == equipment.GroupFWPump {
		if corr, ok := loadCorrection(baseHz, snap.EngineLoad); ok {
			target += corr.DeltaHz
			*rules = append(*rules, corr.RuleID)
			*reasons = append(*reasons, corr.Reason)
		}
	}

	target = safety.ClampFrequency(target)

	// A Critical grading forbids optimization from relaxing the group
	// in the same cycle.
	if critHold && target < baseHz {
		target = baseHz
		*rules = append(*rules, criticalHoldRule(group))
	}

	// Rate limit against the previous cycle.
	maxStep := c.constraints.MaxRateHzPerMin * c.cfg.CycleInterval.Minutes()
	if c.state.Initialized && maxStep > 0 {
		if target > prevHz+maxStep {
			target = prevHz + maxStep
			*rules = append(*rules, rateLimitRule(group))
		} else if target < prevHz-maxStep {
			target = prevHz - maxStep
			*rules = append(*rules, rateLimitRule(group))
		}
	}

	// Hysteresis: suppress changes too small to be worth the actuator
	// chatter.
	if c.state.Initialized && target != prevHz && abs(target-prevHz) < c.constraints.HysteresisHz {
		*rules = append(*rules, hysteresisRule(group))
		target = prevHz
	}

	return target
}

func criticalHoldRule(group equipment.Group) string {
	switch group {
	case equipment.GroupSWPump:
		return RuleCriticalHoldSW
	case equipment.GroupFWPump:
		return RuleCriticalHoldFW
	default:
		return RuleCriticalHoldFan
	}
}

func rateLimitRule(group equipment.Group) string {
	switch group {
	case equipment.GroupSWPump:
		return RuleRateLimitSW
	case equipment.GroupFWPump:
		return RuleRateLimitFW
	default:
		return RuleRateLimitFan
	}
}

func hysteresisRule(group equipment.Group) string {
	switch group {
	case equipment.GroupSWPump:
		return RuleHysteresisSW
	case equipment.GroupFWPump:
		return RuleHysteresisFW
	default:
		return RuleHysteresisFan
	}
}

func joinReasons(reasons []string) string {
	var kept []string
	for _, r := range reasons {
		if r != "" {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return "steady state"
	}

	return strings.Join(kept, "; ")
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}
