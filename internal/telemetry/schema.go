package telemetry

import (
	"database/sql"

	"github.com/chunyongman/coolctl/internal/errors"
)

// initSchema creates the cycle table on first open.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS control_cycles (
            timestamp INTEGER PRIMARY KEY,
            sw_pump_hz REAL,
            fw_pump_hz REAL,
            fan_hz REAL,
            sw_pump_count INTEGER,
            fw_pump_count INTEGER,
            fan_count INTEGER,
            safety_override INTEGER,
            rules TEXT,
            reason TEXT,
            authority TEXT,
            fw_outlet REAL,
            engine_room REAL,
            sea_inlet REAL,
            engine_load REAL
        )
    `)
	if err != nil {
		return errors.New().Wrap(ErrStorageInit, err)
	}

	return nil
}
