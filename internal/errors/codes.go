package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Control errors
	ErrSensorRead        ErrorCode = "sensor_read_failed"
	ErrSensorStale       ErrorCode = "sensor_data_stale"
	ErrActuatorWrite     ErrorCode = "actuator_write_failed"
	ErrCycleOverrun      ErrorCode = "cycle_budget_exceeded"
	ErrConstraintBreach  ErrorCode = "constraint_violated"
	ErrCountDivergence   ErrorCode = "pump_count_divergence"
	ErrUnknownSensorKind ErrorCode = "unknown_sensor_kind"

	// Equipment errors
	ErrUnknownUnit     ErrorCode = "unknown_equipment_unit"
	ErrNoStartableUnit ErrorCode = "no_startable_unit"
	ErrNoStoppableUnit ErrorCode = "no_stoppable_unit"
	ErrUnitNotStopped  ErrorCode = "unit_not_stopped"
	ErrUnitNotRunning  ErrorCode = "unit_not_running"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrUnavailable:       "Service unavailable",
	ErrInvalidConfig:     "Invalid configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read configuration",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrSensorRead:        "Failed to read sensor snapshot",
	ErrSensorStale:       "Sensor data is stale",
	ErrActuatorWrite:     "Failed to write actuator setpoints",
	ErrCycleOverrun:      "Control cycle exceeded its budget",
	ErrConstraintBreach:  "Safety constraint violated",
	ErrCountDivergence:   "Seawater and freshwater pump counts diverged",
	ErrUnknownSensorKind: "Unknown sensor kind",
	ErrUnknownUnit:       "Unknown equipment unit",
	ErrNoStartableUnit:   "No available unit to start",
	ErrNoStoppableUnit:   "No running unit to stop",
	ErrUnitNotStopped:    "Unit is not in a stopped state",
	ErrUnitNotRunning:    "Unit is not running",
	ErrOperationFailed:   "Operation failed",
	ErrTimeout:           "Operation timed out",
	ErrInvalidOperation:  "Invalid operation",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
