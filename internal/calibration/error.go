package calibration

// ConfigError is returned when the supplied correspondences cannot produce
// a usable transform. It is fatal at startup.
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return "calibration: " + e.msg
}
