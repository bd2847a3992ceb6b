package telemetry

import (
	"context"
	"time"
)

// Collector records one row per control cycle.
type Collector interface {
	Record(ctx context.Context, record *CycleRecord) error
	Close() error
}

// CycleRecord is the audit row for one control cycle.
type CycleRecord struct {
	Timestamp      time.Time
	SWPumpHz       float64
	FWPumpHz       float64
	FanHz          float64
	SWPumpCount    int
	FWPumpCount    int
	FanCount       int
	SafetyOverride bool
	Rules          []string
	Reason         string
	Authority      string
	FWOutlet       float64
	EngineRoom     float64
	SeaInlet       float64
	EngineLoad     float64
}
