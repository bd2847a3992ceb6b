package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chunyongman/coolctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
interval = 5
health_interval = 10
fw_outlet_setpoint = 36.5
room_setpoint = 44.0
monitor = true
log_level = "debug"
telemetry = true
database = "/path/to/telemetry.db"
metrics_listen = ":9100"
`)
	configPath := filepath.Join(tempDir, "coolctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COOLCTL_CONFIG", configPath)
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"coolctl"}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Interval, "Expected Interval 5")
	assert.Equal(t, 10, cfg.HealthInterval, "Expected HealthInterval 10")
	assert.InDelta(t, 36.5, cfg.FWOutletSetpoint, 0.001)
	assert.InDelta(t, 44.0, cfg.RoomSetpoint, 0.001)
	assert.True(t, cfg.Monitor, "Expected Monitor true")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.True(t, cfg.Telemetry, "Expected Telemetry true")
	assert.Equal(t, "/path/to/telemetry.db", cfg.Database)
	assert.Equal(t, ":9100", cfg.MetricsListen)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COOLCTL_CONFIG", "")
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"coolctl"}

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, 2, cfg.Interval, "Expected default Interval 2")
	assert.Equal(t, 5, cfg.HealthInterval, "Expected default HealthInterval 5")
	assert.Equal(t, 1, cfg.HeartbeatInterval, "Expected default HeartbeatInterval 1")
	assert.Equal(t, 500, cfg.SensorTimeoutMs, "Expected default SensorTimeoutMs 500")
	assert.InDelta(t, 35.0, cfg.FWOutletSetpoint, 0.001)
	assert.InDelta(t, 43.0, cfg.RoomSetpoint, 0.001)
	assert.False(t, cfg.Monitor, "Expected default Monitor false")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
This is not a valid TOML file
`)
	configPath := filepath.Join(tempDir, "coolctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COOLCTL_CONFIG", configPath)
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"coolctl"}

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	tempDir := t.TempDir()

	configContent := []byte(`
log_level = "invalid"
`)
	configPath := filepath.Join(tempDir, "coolctl.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COOLCTL_CONFIG", configPath)
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"coolctl"}

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid log level")
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("COOLCTL_CONFIG", "")
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"coolctl", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestTelemetryRequiresDatabase(t *testing.T) {
	cfg := &config.Config{
		Interval:          2,
		HealthInterval:    5,
		HeartbeatInterval: 1,
		LogLevel:          "info",
		Telemetry:         true,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database path")
}
