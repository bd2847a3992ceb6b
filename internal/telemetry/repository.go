package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/chunyongman/coolctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type Repository interface {
	Store(record *CycleRecord) error
	Close() error
}

type sqliteRepository struct {
	db            *sql.DB
	cfg           Config
	mu            sync.Mutex
	buffer        []*CycleRecord
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	// WAL keeps the control loop from stalling behind a checkpoint
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	repo := &sqliteRepository{
		db:            db,
		cfg:           cfg,
		buffer:        make([]*CycleRecord, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	}

	return repo, nil
}

func (r *sqliteRepository) Store(record *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, record)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	if r.flushTicker != nil {
		close(r.shutdownChan)
		r.flushTicker.Stop()
		<-r.flushDoneChan
	} else {
		r.mu.Lock()
		r.flush()
		r.mu.Unlock()
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	logger.Debug().Msg("Telemetry repository closed")

	return nil
}

func (r *sqliteRepository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Error().Err(err).Msg("Telemetry flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				logger.Error().Err(err).Msg("Final telemetry flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffered rows in one transaction. Caller must hold
// the lock.
func (r *sqliteRepository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO control_cycles (
            timestamp, sw_pump_hz, fw_pump_hz, fan_hz,
            sw_pump_count, fw_pump_count, fan_count,
            safety_override, rules, reason, authority,
            fw_outlet, engine_room, sea_inlet, engine_load
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp) DO UPDATE SET
            sw_pump_hz = excluded.sw_pump_hz,
            fw_pump_hz = excluded.fw_pump_hz,
            fan_hz = excluded.fan_hz,
            sw_pump_count = excluded.sw_pump_count,
            fw_pump_count = excluded.fw_pump_count,
            fan_count = excluded.fan_count,
            safety_override = excluded.safety_override,
            rules = excluded.rules,
            reason = excluded.reason,
            authority = excluded.authority,
            fw_outlet = excluded.fw_outlet,
            engine_room = excluded.engine_room,
            sea_inlet = excluded.sea_inlet,
            engine_load = excluded.engine_load
    `)
	if err != nil {
		tx.Rollback()
		return errors.New().Wrap(ErrStorageAccess, err)
	}
	defer stmt.Close()

	for _, record := range r.buffer {
		if _, err := stmt.Exec(
			record.Timestamp.UnixMilli(),
			record.SWPumpHz,
			record.FWPumpHz,
			record.FanHz,
			record.SWPumpCount,
			record.FWPumpCount,
			record.FanCount,
			boolToInt(record.SafetyOverride),
			strings.Join(record.Rules, ","),
			record.Reason,
			record.Authority,
			record.FWOutlet,
			record.EngineRoom,
			record.SeaInlet,
			record.EngineLoad,
		); err != nil {
			tx.Rollback()
			return errors.New().Wrap(ErrStorageAccess, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	r.buffer = r.buffer[:0]

	return nil
}
