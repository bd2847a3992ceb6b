package config

import (
	"os"
	"strings"
	"time"

	"github.com/chunyongman/coolctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval          = 2
	defaultHealthInterval    = 5
	defaultHeartbeatInterval = 1
	defaultIOTimeoutMs       = 500
	defaultDatabase          = "/var/lib/coolctl/telemetry.db"
	defaultFWOutletSetpoint  = 35.0
	defaultRoomSetpoint      = 43.0
)

// Config holds everything the daemon needs at startup. Values are
// immutable after Load.
type Config struct {
	Interval          int     `mapstructure:"interval"`
	HealthInterval    int     `mapstructure:"health_interval"`
	HeartbeatInterval int     `mapstructure:"heartbeat_interval"`
	SensorTimeoutMs   int     `mapstructure:"sensor_timeout_ms"`
	ActuatorTimeoutMs int     `mapstructure:"actuator_timeout_ms"`
	FWOutletSetpoint  float64 `mapstructure:"fw_outlet_setpoint"`
	RoomSetpoint      float64 `mapstructure:"room_setpoint"`
	Simulate          bool    `mapstructure:"simulate"`
	Monitor           bool    `mapstructure:"monitor"`
	LogLevel          string  `mapstructure:"log_level"`
	Telemetry         bool    `mapstructure:"telemetry"`
	Database          string  `mapstructure:"database"`
	MetricsListen     string  `mapstructure:"metrics_listen"`
}

// Load reads configuration from flags, the COOLCTL_CONFIG file (TOML)
// and built-in defaults, in that order of precedence.
func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("coolctl", pflag.ContinueOnError)
	flags.Int("interval", defaultInterval, "Control cycle interval in seconds")
	flags.String("config", "", "Path to configuration file")
	flags.String("log-level", "", "Log level (debug, info, warning, error)")
	flags.Bool("simulate", false, "Run against the built-in plant simulator")
	flags.Bool("monitor", false, "Compute decisions without actuating")
	flags.Bool("telemetry", false, "Enable telemetry recording")
	flags.String("database", "", "Path to the telemetry database")
	flags.String("metrics-listen", "", "Listen address for the metrics endpoint")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("health_interval", defaultHealthInterval)
	v.SetDefault("heartbeat_interval", defaultHeartbeatInterval)
	v.SetDefault("sensor_timeout_ms", defaultIOTimeoutMs)
	v.SetDefault("actuator_timeout_ms", defaultIOTimeoutMs)
	v.SetDefault("fw_outlet_setpoint", defaultFWOutletSetpoint)
	v.SetDefault("room_setpoint", defaultRoomSetpoint)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("database", defaultDatabase)

	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = os.Getenv("COOLCTL_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig,
				"Failed to read config file: "+err.Error())
		}
	} else {
		v.SetConfigName("coolctl.conf")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	// Flags set on the command line override file values
	flags.Visit(func(f *pflag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded configuration for values the control loop
// cannot run with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.HealthInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.HealthInterval)
	}
	if c.HeartbeatInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.HeartbeatInterval)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Telemetry && c.Database == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig,
			"telemetry enabled but no database path configured")
	}

	return nil
}

// CycleInterval returns the control cycle period.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// SensorTimeout returns the bounded timeout for a sensor read.
func (c *Config) SensorTimeout() time.Duration {
	return time.Duration(c.SensorTimeoutMs) * time.Millisecond
}

// ActuatorTimeout returns the bounded timeout for an actuator write.
func (c *Config) ActuatorTimeout() time.Duration {
	return time.Duration(c.ActuatorTimeoutMs) * time.Millisecond
}

// HealthIntervalDuration returns the redundancy health check period.
func (c *Config) HealthIntervalDuration() time.Duration {
	return time.Duration(c.HealthInterval) * time.Second
}

// HeartbeatIntervalDuration returns the heartbeat emit period.
func (c *Config) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}
