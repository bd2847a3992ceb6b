package pidloop

import (
	"sync"
	"time"
)

const (
	// dt guards: cold start assumes one nominal cycle, and very small
	// deltas are floored so the derivative term cannot blow up.
	coldStartDt = 1.0
	minDt       = 0.1
)

// Gains is a (Kp, Ki, Kd) triple.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Scale multiplies all three gains by a schedule factor.
func (g Gains) Scale(factor float64) Gains {
	return Gains{
		Kp: g.Kp * factor,
		Ki: g.Ki * factor,
		Kd: g.Kd * factor,
	}
}

// Config holds the immutable tuning of one loop.
type Config struct {
	Base        Gains
	Setpoint    float64
	OutputMin   float64
	OutputMax   float64
	IntegralMax float64 // anti-windup bound, absolute
	SlewHzPerS  float64 // output slew-rate ceiling
}

// Loop is a proportional-integral-derivative controller with anti-windup
// clamping, output clamping and output slew-rate limiting. Output is the
// demanded rise above OutputMin, so a loop sitting at or below setpoint
// rests at the minimum frequency. One instance per controlled
// temperature; Compute is the only mutating operation.
type Loop struct {
	mu  sync.Mutex
	cfg Config

	integral   float64
	prevErr    float64
	prevTime   time.Time
	prevOutput float64
	hasPrev    bool
}

// New creates a loop from its tuning.
func New(cfg Config) *Loop {
	return &Loop{cfg: cfg}
}

// Setpoint returns the configured target value.
func (l *Loop) Setpoint() float64 {
	return l.cfg.Setpoint
}

// Compute advances the loop by one sample. The scale factor comes from
// the gain scheduler and multiplies the base gains for this call only.
func (l *Loop) Compute(measured, scale float64, now time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	dt := coldStartDt
	if !l.prevTime.IsZero() {
		dt = now.Sub(l.prevTime).Seconds()
		if dt < minDt {
			dt = minDt
		}
	}

	gains := l.cfg.Base.Scale(scale)
	err := measured - l.cfg.Setpoint

	l.integral += err * dt
	l.integral = clamp(l.integral, -l.cfg.IntegralMax, l.cfg.IntegralMax)

	var derivative float64
	if l.hasPrev {
		derivative = (err - l.prevErr) / dt
	}

	output := l.cfg.OutputMin + gains.Kp*err + gains.Ki*l.integral + gains.Kd*derivative
	output = clamp(output, l.cfg.OutputMin, l.cfg.OutputMax)

	if l.hasPrev && l.cfg.SlewHzPerS > 0 {
		maxStep := l.cfg.SlewHzPerS * dt
		output = clamp(output, l.prevOutput-maxStep, l.prevOutput+maxStep)
		output = clamp(output, l.cfg.OutputMin, l.cfg.OutputMax)
	}

	l.prevErr = err
	l.prevTime = now
	l.prevOutput = output
	l.hasPrev = true

	return output
}

// Reset clears all accumulated state without touching the configured
// gains. Called on manual intervention or a control-mode change.
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.integral = 0
	l.prevErr = 0
	l.prevTime = time.Time{}
	l.prevOutput = 0
	l.hasPrev = false
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
