package sim

import (
	"context"
	"sync"
	"time"

	"github.com/chunyongman/coolctl/internal/controller"
)

// Config sets the ambient conditions and dynamics of the simulated
// cooling plant.
type Config struct {
	SeaInlet   float64 // °C
	OutsideAir float64 // °C
	EngineLoad float64 // % MCR

	FWTimeConstant   time.Duration
	RoomTimeConstant time.Duration

	InitialFWOutlet float64
	InitialRoom     float64
}

// DefaultConfig returns a temperate-water transit at medium load.
func DefaultConfig() Config {
	return Config{
		SeaInlet:         25,
		OutsideAir:       30,
		EngineLoad:       60,
		FWTimeConstant:   40 * time.Second,
		RoomTimeConstant: 60 * time.Second,
		InitialFWOutlet:  42,
		InitialRoom:      46,
	}
}

// Plant is a first-order thermal model of the freshwater circuit and the
// engine room. It stands in for the field bus: it is both the sensor
// source and the actuator sink.
type Plant struct {
	mu  sync.Mutex
	cfg Config

	fwOutlet float64
	room     float64
	freqs    controller.Frequencies
	counts   controller.Counts
	lastRead time.Time
	now      func() time.Time
}

// New builds a plant at its configured initial temperatures. Actuators
// start at 50 Hz with two pumps and two fans per group. A nil now falls
// back to time.Now.
func New(cfg Config, now func() time.Time) *Plant {
	if now == nil {
		now = time.Now
	}

	return &Plant{
		cfg:      cfg,
		fwOutlet: cfg.InitialFWOutlet,
		room:     cfg.InitialRoom,
		freqs:    controller.Frequencies{SWPump: 50, FWPump: 50, Fan: 50},
		counts:   controller.Counts{SWPump: 2, FWPump: 2, Fan: 2},
		now:      now,
	}
}

// Read advances the model by the wall-clock time since the previous read
// and returns the resulting snapshot.
func (p *Plant) Read(_ context.Context) (controller.SensorSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.lastRead.IsZero() {
		p.step(now.Sub(p.lastRead).Seconds())
	}
	p.lastRead = now

	return p.snapshot(now), nil
}

// Apply stores the decision's setpoints as the plant's actuator state.
func (p *Plant) Apply(_ context.Context, decision controller.ControlDecision) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.freqs = decision.Frequencies
	p.counts = decision.Counts

	return nil
}

// Step advances the model by dt seconds. Exposed for tests that drive
// the plant with a synthetic clock.
func (p *Plant) Step(dtSeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step(dtSeconds)
}

// Snapshot returns the current sensor values without advancing the
// model.
func (p *Plant) Snapshot(at time.Time) controller.SensorSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.snapshot(at)
}

// SetFrequencies overrides the actuator frequencies directly.
func (p *Plant) SetFrequencies(freqs controller.Frequencies) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freqs = freqs
}

// SetCounts overrides the active-unit counts directly.
func (p *Plant) SetCounts(counts controller.Counts) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts = counts
}

// SetEngineLoad changes the simulated engine load.
func (p *Plant) SetEngineLoad(load float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.EngineLoad = load
}

// step integrates both thermal nodes toward their equilibria. Caller
// must hold the lock.
func (p *Plant) step(dtSeconds float64) {
	if dtSeconds <= 0 {
		return
	}

	eqFW := p.cfg.SeaInlet + 2 + 0.18*p.cfg.EngineLoad -
		0.35*(p.freqs.FWPump-40) - 0.15*(p.freqs.SWPump-40) -
		1.0*float64(p.counts.SWPump-1)
	eqRoom := p.cfg.OutsideAir + 0.30*p.cfg.EngineLoad -
		0.5*(p.freqs.Fan-40) - 2.0*float64(p.counts.Fan-2)

	fwAlpha := dtSeconds / p.cfg.FWTimeConstant.Seconds()
	if fwAlpha > 1 {
		fwAlpha = 1
	}
	roomAlpha := dtSeconds / p.cfg.RoomTimeConstant.Seconds()
	if roomAlpha > 1 {
		roomAlpha = 1
	}

	p.fwOutlet += fwAlpha * (eqFW - p.fwOutlet)
	p.room += roomAlpha * (eqRoom - p.room)
}

// snapshot derives the seven temperatures and the discharge pressure
// from the model state. Caller must hold the lock.
func (p *Plant) snapshot(at time.Time) controller.SensorSnapshot {
	// Cooler outlets track the seawater inlet plus the heat the
	// coolers reject; the freshwater inlet sits a few degrees above
	// the outlet.
	coolerOut := p.cfg.SeaInlet + 4 + 0.05*p.cfg.EngineLoad - 0.05*(p.freqs.SWPump-40)
	pressure := 1.0 + 0.04*(p.freqs.SWPump-40) + 0.3*float64(p.counts.SWPump-1)

	return controller.SensorSnapshot{
		SeaInlet:    p.cfg.SeaInlet,
		CoolerOutA:  coolerOut,
		CoolerOutB:  coolerOut - 0.4,
		FWInlet:     p.fwOutlet + 4,
		FWOutlet:    p.fwOutlet,
		EngineRoom:  p.room,
		OutsideAir:  p.cfg.OutsideAir,
		PressureBar: pressure,
		EngineLoad:  p.cfg.EngineLoad,
		Timestamp:   at,
	}
}
