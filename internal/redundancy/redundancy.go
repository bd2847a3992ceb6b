package redundancy

import (
	"sync"
	"time"

	"github.com/chunyongman/coolctl/internal/logger"
)

// Authority says which side is allowed to drive the actuators.
type Authority string

const (
	AuthorityPrimary  Authority = "primary"   // onboard controller
	AuthorityBackup   Authority = "backup"    // PLC
	AuthorityFailSafe Authority = "fail_safe" // both unresponsive, hold last safe state
)

// Event is one failover transition. The event log is append-only; it is
// the only audit trail and is never truncated in place.
type Event struct {
	At               time.Time
	From             Authority
	To               Authority
	Reason           string
	RecoveryDuration time.Duration
}

// Status is a read-only snapshot for monitoring collaborators.
type Status struct {
	Authority        Authority
	PrimaryHeartbeat time.Time
	BackupHeartbeat  time.Time
	Events           []Event
}

// Config holds the failover timing.
type Config struct {
	HeartbeatTimeout time.Duration // heartbeat older than this is stale
	StabilityWindow  time.Duration // primary must stay fresh this long before recovery
}

// DefaultConfig returns the shipboard failover timing.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: 10 * time.Second,
		StabilityWindow:  30 * time.Second,
	}
}

// Manager is the failover state machine between the onboard controller
// (primary) and the PLC (backup). It never blocks: Touch* only stamp
// timestamps and Check only compares them.
type Manager struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	authority         Authority
	primaryHeartbeat  time.Time
	backupHeartbeat   time.Time
	primaryFreshSince time.Time
	primaryLostAt     time.Time
	events            []Event
}

// NewManager starts in Primary with both heartbeats considered fresh.
// A nil now falls back to time.Now.
func NewManager(cfg Config, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}

	start := now()

	return &Manager{
		cfg:               cfg,
		now:               now,
		authority:         AuthorityPrimary,
		primaryHeartbeat:  start,
		backupHeartbeat:   start,
		primaryFreshSince: start,
	}
}

// TouchPrimary refreshes the onboard controller's heartbeat.
func (m *Manager) TouchPrimary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primaryHeartbeat = m.now()
}

// TouchBackup refreshes the PLC's heartbeat.
func (m *Manager) TouchBackup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backupHeartbeat = m.now()
}

// Authority returns the current control authority.
func (m *Manager) Authority() Authority {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authority
}

// Check runs one health-check tick and returns the resulting authority.
func (m *Manager) Check() Authority {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	primaryFresh := now.Sub(m.primaryHeartbeat) <= m.cfg.HeartbeatTimeout
	backupFresh := now.Sub(m.backupHeartbeat) <= m.cfg.HeartbeatTimeout

	// Track how long the primary has been continuously fresh; any lapse
	// restarts the stability window.
	if primaryFresh {
		if m.primaryFreshSince.IsZero() {
			m.primaryFreshSince = now
		}
	} else {
		m.primaryFreshSince = time.Time{}
	}

	switch m.authority {
	case AuthorityPrimary:
		if !primaryFresh {
			m.primaryLostAt = now
			m.transition(now, AuthorityBackup, "primary heartbeat timeout", 0)
			if !backupFresh {
				m.transition(now, AuthorityFailSafe, "primary and backup heartbeats timed out", 0)
			}
		}
	case AuthorityBackup:
		if !backupFresh && !primaryFresh {
			m.transition(now, AuthorityFailSafe, "primary and backup heartbeats timed out", 0)
			break
		}
		m.tryRecover(now)
	case AuthorityFailSafe:
		if backupFresh && !primaryFresh {
			m.transition(now, AuthorityBackup, "backup heartbeat restored", 0)
			break
		}
		m.tryRecover(now)
	}

	return m.authority
}

// tryRecover restores Primary once its heartbeat has stayed fresh for
// the full stability window. Caller must hold the lock.
func (m *Manager) tryRecover(now time.Time) {
	if m.primaryFreshSince.IsZero() {
		return
	}
	if now.Sub(m.primaryFreshSince) < m.cfg.StabilityWindow {
		return
	}

	var recovery time.Duration
	if !m.primaryLostAt.IsZero() {
		recovery = now.Sub(m.primaryLostAt)
	}
	m.transition(now, AuthorityPrimary, "primary heartbeat stable, authority restored", recovery)
	m.primaryLostAt = time.Time{}
}

// transition appends a failover event and switches authority. Caller
// must hold the lock.
func (m *Manager) transition(now time.Time, to Authority, reason string, recovery time.Duration) {
	event := Event{
		At:               now,
		From:             m.authority,
		To:               to,
		Reason:           reason,
		RecoveryDuration: recovery,
	}
	m.events = append(m.events, event)
	m.authority = to

	logger.Warn().
		Str("from", string(event.From)).
		Str("to", string(event.To)).
		Str("reason", reason).
		Msg("Control authority changed")
}

// Status returns a snapshot with a copy of the event log.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]Event, len(m.events))
	copy(events, m.events)

	return Status{
		Authority:        m.authority,
		PrimaryHeartbeat: m.primaryHeartbeat,
		BackupHeartbeat:  m.backupHeartbeat,
		Events:           events,
	}
}
