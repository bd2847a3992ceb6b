package equipment

import (
	"sort"
	"sync"
	"time"

	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/logger"
)

// Group identifies an actuator group on the cooling plant.
type Group string

const (
	GroupSWPump Group = "sw_pump"
	GroupFWPump Group = "fw_pump"
	GroupFan    Group = "er_fan"
)

// Status is the operational state of a single physical unit.
type Status string

const (
	StatusRunning     Status = "running"
	StatusStopped     Status = "stopped"
	StatusStandby     Status = "standby"
	StatusFault       Status = "fault"
	StatusMaintenance Status = "maintenance"
)

// Record holds the runtime bookkeeping for one physical unit. Copies are
// handed out; the registry owns the mutable originals.
type Record struct {
	ID              string
	Group           Group
	Status          Status
	CumulativeHours float64
	DailyHours      float64
	ContinuousHours float64
	StartCount      int
	StartedAt       time.Time
	StoppedAt       time.Time
	FaultAt         time.Time
}

// Registry tracks per-unit run hours and selects which unit to start or
// stop so wear stays balanced across a group.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*Record
	order []string
	now   func() time.Time
}

// NewRegistry creates an empty registry. A nil now falls back to time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	return &Registry{
		units: make(map[string]*Record),
		now:   now,
	}
}

// Register adds a unit in the stopped state. Registering an existing ID
// is ignored.
func (r *Registry) Register(id string, group Group) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.units[id]; ok {
		return
	}

	r.units[id] = &Record{
		ID:     id,
		Group:  group,
		Status: StatusStopped,
	}
	r.order = append(r.order, id)
}

// SelectStart returns the unit that should start next in the group: the
// lowest cumulative runtime among available units, ties broken by the
// most recently stopped unit, then by identifier.
func (r *Registry) SelectStart(group Group) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.collect(group, func(u *Record) bool {
		return u.Status == StatusStopped || u.Status == StatusStandby
	})
	if len(candidates) == 0 {
		return "", errors.New().WithData(errors.ErrNoStartableUnit, string(group))
	}

	now := r.now()
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ah, bh := liveHours(a, now), liveHours(b, now); ah != bh {
			return ah < bh
		}
		if !a.StoppedAt.Equal(b.StoppedAt) {
			return a.StoppedAt.After(b.StoppedAt)
		}
		return a.ID < b.ID
	})

	return candidates[0].ID, nil
}

// SelectStop returns the unit that should stop next in the group: the
// highest cumulative runtime among running units, ties broken by
// identifier. Runtime is counted up to now, so a unit on a long
// uninterrupted run ranks by what it has actually accrued, not by what
// was banked at its last stop.
func (r *Registry) SelectStop(group Group) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.collect(group, func(u *Record) bool {
		return u.Status == StatusRunning
	})
	if len(candidates) == 0 {
		return "", errors.New().WithData(errors.ErrNoStoppableUnit, string(group))
	}

	now := r.now()
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ah, bh := liveHours(a, now), liveHours(b, now); ah != bh {
			return ah > bh
		}
		return a.ID < b.ID
	})

	return candidates[0].ID, nil
}

// liveHours is a unit's cumulative runtime including the current run.
func liveHours(u *Record, now time.Time) float64 {
	hours := u.CumulativeHours
	if u.Status == StatusRunning && !u.StartedAt.IsZero() {
		if running := now.Sub(u.StartedAt).Hours(); running > 0 {
			hours += running
		}
	}

	return hours
}

// Start transitions a unit to running and counts the start.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return errors.New().WithData(errors.ErrUnknownUnit, id)
	}
	if u.Status != StatusStopped && u.Status != StatusStandby {
		return errors.New().WithData(errors.ErrUnitNotStopped, id)
	}

	u.Status = StatusRunning
	u.StartCount++
	u.StartedAt = r.now()
	u.ContinuousHours = 0
	logger.Debug().Str("unit", id).Msg("Unit started")

	return nil
}

// Stop transitions a unit to stopped and accrues its run hours.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return errors.New().WithData(errors.ErrUnknownUnit, id)
	}
	if u.Status != StatusRunning {
		return errors.New().WithData(errors.ErrUnitNotRunning, id)
	}

	now := r.now()
	r.accrue(u, now)
	u.Status = StatusStopped
	u.StoppedAt = now
	u.ContinuousHours = 0
	logger.Debug().Str("unit", id).Float64("cumulative_hours", u.CumulativeHours).Msg("Unit stopped")

	return nil
}

// MarkFault flags a unit as faulted. A running unit accrues its hours
// before it is taken out of rotation.
func (r *Registry) MarkFault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return errors.New().WithData(errors.ErrUnknownUnit, id)
	}

	now := r.now()
	if u.Status == StatusRunning {
		r.accrue(u, now)
	}
	u.Status = StatusFault
	u.FaultAt = now
	u.ContinuousHours = 0
	logger.Warn().Str("unit", id).Msg("Unit marked faulted")

	return nil
}

// ClearFault returns a faulted unit to standby.
func (r *Registry) ClearFault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return errors.New().WithData(errors.ErrUnknownUnit, id)
	}
	if u.Status != StatusFault {
		return errors.New().WithData(errors.ErrInvalidOperation, id)
	}

	u.Status = StatusStandby
	u.StoppedAt = r.now()

	return nil
}

// SetMaintenance puts a stopped unit into, or takes it out of,
// maintenance.
func (r *Registry) SetMaintenance(id string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[id]
	if !ok {
		return errors.New().WithData(errors.ErrUnknownUnit, id)
	}

	if on {
		if u.Status == StatusRunning {
			return errors.New().WithData(errors.ErrUnitNotStopped, id)
		}
		u.Status = StatusMaintenance
	} else if u.Status == StatusMaintenance {
		u.Status = StatusStandby
		u.StoppedAt = r.now()
	}

	return nil
}

// RunningCount returns how many units in the group are running.
func (r *Registry) RunningCount(group Group) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, id := range r.order {
		if u := r.units[id]; u.Group == group && u.Status == StatusRunning {
			count++
		}
	}

	return count
}

// Running returns the IDs of the running units in a group, in
// registration order.
func (r *Registry) Running(group Group) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		if u := r.units[id]; u.Group == group && u.Status == StatusRunning {
			ids = append(ids, id)
		}
	}

	return ids
}

// Snapshot returns copies of the group's records with run hours brought
// current for running units.
func (r *Registry) Snapshot(group Group) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var records []Record
	for _, id := range r.order {
		u := r.units[id]
		if u.Group != group {
			continue
		}
		rec := *u
		if u.Status == StatusRunning {
			running := now.Sub(u.StartedAt).Hours()
			rec.CumulativeHours += running
			rec.DailyHours += running
			rec.ContinuousHours = running
		}
		records = append(records, rec)
	}

	return records
}

// ResetDaily zeroes the per-day hour counters. Running units fold their
// elapsed time into the cumulative counter first.
func (r *Registry) ResetDaily() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, u := range r.units {
		if u.Status == StatusRunning {
			r.accrue(u, now)
			u.StartedAt = now
		}
		u.DailyHours = 0
	}
}

// accrue folds the time since StartedAt into the hour counters. Caller
// must hold the lock.
func (r *Registry) accrue(u *Record, now time.Time) {
	if u.StartedAt.IsZero() {
		return
	}

	hours := now.Sub(u.StartedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	u.CumulativeHours += hours
	u.DailyHours += hours
	u.ContinuousHours = hours
}

func (r *Registry) collect(group Group, keep func(*Record) bool) []*Record {
	var out []*Record
	for _, id := range r.order {
		if u := r.units[id]; u.Group == group && keep(u) {
			out = append(out, u)
		}
	}

	return out
}
