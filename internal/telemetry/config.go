package telemetry

import "github.com/chunyongman/coolctl/internal/errors"

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 30
	defaultBatchTimeout = 60 // seconds
)

type Config struct {
	Enabled      bool
	DBPath       string
	BatchSize    int
	BatchTimeout int
}

func DefaultConfig(dbPath string, enabled bool) Config {
	return Config{
		Enabled:      enabled,
		DBPath:       dbPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
