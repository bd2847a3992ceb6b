package count

import (
	"fmt"
	"time"

	"github.com/chunyongman/coolctl/internal/equipment"
	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/logger"
	"github.com/chunyongman/coolctl/internal/safety"
)

// Rule identifiers emitted by the count layer.
const (
	RulePumpTierMin = "PUMP_TIER_MIN"
	RulePumpTierUp  = "PUMP_TIER_UP"
	RuleFanEmerg    = "FAN_EMERG_INC"
	RuleFanPreempt  = "FAN_PREEMPT_INC"
	RuleFanHighTemp = "FAN_HITEMP_INC"
	RuleFanSatHigh  = "FAN_SAT_INC"
	RuleFanIdleLow  = "FAN_IDLE_DEC"
)

// Config holds the anti-oscillation tuning of the count layer.
type Config struct {
	PumpLoadThreshold float64 // % engine load for the second pump tier

	RoomEmergency float64 // °C, immediate increment
	RoomPreempt   float64 // °C, immediate increment when forecast agrees
	RoomHigh      float64 // °C, increment after HighTempDwell

	FreqHigh float64 // Hz, saturation band start
	FreqLow  float64 // Hz, idle band end

	HighTempDwell time.Duration
	FreqHighDwell time.Duration
	FreqLowDwell  time.Duration
	Cooldown      time.Duration

	RebaseOffsetHz float64 // frequency pull after a count change
}

// DefaultConfig returns the shipboard tuning.
func DefaultConfig() Config {
	return Config{
		PumpLoadThreshold: 30,
		RoomEmergency:     47,
		RoomPreempt:       45,
		RoomHigh:          44,
		FreqHigh:          59.5,
		FreqLow:           40.5,
		HighTempDwell:     5 * time.Second,
		FreqHighDwell:     10 * time.Second,
		FreqLowDwell:      10 * time.Second,
		Cooldown:          30 * time.Second,
		RebaseOffsetHz:    3,
	}
}

// roomWindowSize is the moving-average span for the sustained
// high-temperature tier.
const roomWindowSize = 5

// Controller decides how many units of each group run and, through the
// runtime registry, which physical units carry the load. All dwell and
// cooldown gates compare monotonic timestamps from the injected clock.
type Controller struct {
	cfg         Config
	constraints safety.ConstraintSet
	registry    *equipment.Registry
	now         func() time.Time

	roomWindow    []float64
	highTempSince time.Time
	freqHighSince time.Time
	freqLowSince  time.Time
	cooldownUntil time.Time
}

// NewController wires the count layer to its registry. A nil now falls
// back to time.Now.
func NewController(cfg Config, constraints safety.ConstraintSet, registry *equipment.Registry, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}

	return &Controller{
		cfg:         cfg,
		constraints: constraints,
		registry:    registry,
		now:         now,
	}
}

// PumpDecision is the result of the pump tier rule. Seawater and
// freshwater counts are always equal.
type PumpDecision struct {
	Count  int
	RuleID string
	Reason string
}

// DecidePumps picks the pump tier from engine load and drives both pump
// groups to it. Below the threshold the groups sit at their minimum;
// at or above it they move to the next tier.
func (c *Controller) DecidePumps(engineLoad float64, engineRunning bool) PumpDecision {
	target := c.constraints.MinCount(equipment.GroupSWPump, engineRunning)
	decision := PumpDecision{
		RuleID: RulePumpTierMin,
		Reason: fmt.Sprintf("engine load %.1f%% below %.0f%%, pumps at minimum tier", engineLoad, c.cfg.PumpLoadThreshold),
	}

	if engineLoad >= c.cfg.PumpLoadThreshold {
		target++
		decision.RuleID = RulePumpTierUp
		decision.Reason = fmt.Sprintf("engine load %.1f%% at or above %.0f%%, pumps at next tier", engineLoad, c.cfg.PumpLoadThreshold)
	}

	target = c.constraints.ClampCount(equipment.GroupSWPump, target, engineRunning)
	decision.Count = target

	// Hard invariant: the pump groups never diverge.
	c.drive(equipment.GroupSWPump, target)
	c.drive(equipment.GroupFWPump, target)

	sw := c.registry.RunningCount(equipment.GroupSWPump)
	fw := c.registry.RunningCount(equipment.GroupFWPump)
	if sw != fw {
		// One side could not reach the target, usually because of
		// faulted units. Clamp both to the achievable count.
		achieved := sw
		if fw < achieved {
			achieved = fw
		}
		logger.ErrorWithCode(errors.New().WithData(errors.ErrCountDivergence,
			fmt.Sprintf("sw=%d fw=%d", sw, fw))).Msg("Clamping pump groups to the achievable count")
		c.drive(equipment.GroupSWPump, achieved)
		c.drive(equipment.GroupFWPump, achieved)
		decision.Count = achieved
	}

	return decision
}

// FanInput is everything the fan escalation ladder looks at for one
// cycle.
type FanInput struct {
	RoomTemp      float64 // raw T6; the sustained tier smooths it internally
	ForecastRoom  float64 // predicted T6 at the 5 minute horizon
	HasForecast   bool
	FrequencyHz   float64 // fan frequency after the rule layer
	EngineRunning bool
	SafetyForced  bool // fan group already finalized by the safety layer
}

// FanDecision is the ladder's output. FrequencyHz carries the re-based
// frequency when a count change fired.
type FanDecision struct {
	Count       int
	FrequencyHz float64
	RuleID      string
	Reason      string
	Changed     bool
}

// DecideFans evaluates the escalation ladder in strict priority order.
// Tier 1 (emergency) ignores the cooldown; all other tiers honor it and
// never fire on a cycle where the safety layer already forced the group.
// Any fired branch resets the other branches' dwell timers.
func (c *Controller) DecideFans(in FanInput) FanDecision {
	now := c.now()
	current := c.registry.RunningCount(equipment.GroupFan)
	floor := c.constraints.MinCount(equipment.GroupFan, in.EngineRunning)
	ceiling := c.constraints.MaxCount(equipment.GroupFan)

	// Hold the configured floor before anything else.
	if current < floor {
		c.drive(equipment.GroupFan, floor)
		current = floor
	}

	// The sustained tier reacts to the trend, not to single-sample
	// noise. The immediate tiers below keep seeing the raw reading so
	// an emergency is never averaged away.
	smoothedRoom := c.smoothRoom(in.RoomTemp)
	c.updateDwells(smoothedRoom, in.FrequencyHz, now)

	decision := FanDecision{Count: current, FrequencyHz: in.FrequencyHz}
	inCooldown := now.Before(c.cooldownUntil)

	// Tier 1: absolute emergency, regardless of frequency or cooldown.
	if in.RoomTemp >= c.cfg.RoomEmergency && current < ceiling {
		return c.increment(in, now, current, RuleFanEmerg,
			fmt.Sprintf("engine room %.1f°C ≥ emergency %.1f°C", in.RoomTemp, c.cfg.RoomEmergency))
	}

	if inCooldown || in.SafetyForced {
		return decision
	}

	// Tier 2: current and forecast both above the preemptive threshold.
	if in.HasForecast && in.RoomTemp >= c.cfg.RoomPreempt && in.ForecastRoom >= c.cfg.RoomPreempt && current < ceiling {
		return c.increment(in, now, current, RuleFanPreempt,
			fmt.Sprintf("engine room %.1f°C with forecast %.1f°C ≥ %.1f°C", in.RoomTemp, in.ForecastRoom, c.cfg.RoomPreempt))
	}

	// Tier 3: sustained high temperature.
	if !c.highTempSince.IsZero() && now.Sub(c.highTempSince) >= c.cfg.HighTempDwell && current < ceiling {
		return c.increment(in, now, current, RuleFanHighTemp,
			fmt.Sprintf("engine room above %.1f°C for %s", c.cfg.RoomHigh, c.cfg.HighTempDwell))
	}

	// Tier 4: frequency pinned at the top of the envelope.
	if !c.freqHighSince.IsZero() && now.Sub(c.freqHighSince) >= c.cfg.FreqHighDwell && current < ceiling {
		return c.increment(in, now, current, RuleFanSatHigh,
			fmt.Sprintf("fan frequency ≥ %.1f Hz for %s", c.cfg.FreqHigh, c.cfg.FreqHighDwell))
	}

	// Tier 5: frequency pinned at the bottom and count above floor.
	if !c.freqLowSince.IsZero() && now.Sub(c.freqLowSince) >= c.cfg.FreqLowDwell && current > floor {
		return c.decrement(in, now, current, RuleFanIdleLow,
			fmt.Sprintf("fan frequency ≤ %.1f Hz for %s", c.cfg.FreqLow, c.cfg.FreqLowDwell))
	}

	return decision
}

// updateDwells arms or clears the sustain timers for the ladder's
// dwell-gated tiers.
func (c *Controller) updateDwells(roomTemp, frequencyHz float64, now time.Time) {
	if roomTemp > c.cfg.RoomHigh {
		if c.highTempSince.IsZero() {
			c.highTempSince = now
		}
	} else {
		c.highTempSince = time.Time{}
	}

	if frequencyHz >= c.cfg.FreqHigh {
		if c.freqHighSince.IsZero() {
			c.freqHighSince = now
		}
	} else {
		c.freqHighSince = time.Time{}
	}

	if frequencyHz <= c.cfg.FreqLow {
		if c.freqLowSince.IsZero() {
			c.freqLowSince = now
		}
	} else {
		c.freqLowSince = time.Time{}
	}
}

// smoothRoom keeps a short moving average of the engine-room
// temperature for the sustained-temperature tier.
func (c *Controller) smoothRoom(value float64) float64 {
	c.roomWindow = append(c.roomWindow, value)
	if len(c.roomWindow) > roomWindowSize {
		c.roomWindow = c.roomWindow[1:]
	}

	sum := 0.0
	for _, v := range c.roomWindow {
		sum += v
	}

	return sum / float64(len(c.roomWindow))
}

func (c *Controller) increment(in FanInput, now time.Time, current int, rule, reason string) FanDecision {
	c.drive(equipment.GroupFan, current+1)
	c.afterChange(now)

	// Pull the frequency down so the extra unit does not immediately
	// re-trigger the saturation tier.
	return FanDecision{
		Count:       c.registry.RunningCount(equipment.GroupFan),
		FrequencyHz: safety.ClampFrequency(in.FrequencyHz - c.cfg.RebaseOffsetHz),
		RuleID:      rule,
		Reason:      reason,
		Changed:     true,
	}
}

func (c *Controller) decrement(in FanInput, now time.Time, current int, rule, reason string) FanDecision {
	c.drive(equipment.GroupFan, current-1)
	c.afterChange(now)

	return FanDecision{
		Count:       c.registry.RunningCount(equipment.GroupFan),
		FrequencyHz: safety.ClampFrequency(in.FrequencyHz + c.cfg.RebaseOffsetHz),
		RuleID:      rule,
		Reason:      reason,
		Changed:     true,
	}
}

// afterChange starts the cooldown and resets every dwell timer so a
// stale partial count cannot carry over into the next escalation.
func (c *Controller) afterChange(now time.Time) {
	c.cooldownUntil = now.Add(c.cfg.Cooldown)
	c.highTempSince = time.Time{}
	c.freqHighSince = time.Time{}
	c.freqLowSince = time.Time{}
}

// drive starts or stops units until the group's running count matches
// the target, using the registry's wear-levelled selection. Faulted or
// maintenance units shrink what is achievable; that is logged, not
// fatal.
func (c *Controller) drive(group equipment.Group, target int) {
	for c.registry.RunningCount(group) < target {
		id, err := c.registry.SelectStart(group)
		if err != nil {
			logger.Warn().Str("group", string(group)).Int("target", target).Err(err).Msg("No unit available to start")
			return
		}
		if err := c.registry.Start(id); err != nil {
			logger.Warn().Str("unit", id).Err(err).Msg("Failed to start unit")
			return
		}
	}

	for c.registry.RunningCount(group) > target {
		id, err := c.registry.SelectStop(group)
		if err != nil {
			logger.Warn().Str("group", string(group)).Int("target", target).Err(err).Msg("No unit available to stop")
			return
		}
		if err := c.registry.Stop(id); err != nil {
			logger.Warn().Str("unit", id).Err(err).Msg("Failed to stop unit")
			return
		}
	}
}
