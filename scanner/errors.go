package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange indicates a malformed or reversed port range expression.
	ErrInvalidRange = errors.New("invalid port range")
	// ErrInvalidTarget indicates the target is not an IP literal.
	ErrInvalidTarget = errors.New("invalid target address")
	// ErrInvalidTimeout indicates a non-positive probe timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrInvalidConcurrency indicates a non-positive concurrency cap.
	ErrInvalidConcurrency = errors.New("invalid concurrency")
	// ErrInvalidRate indicates a negative probe rate.
	ErrInvalidRate = errors.New("invalid rate")

	// ErrProbeAborted is returned by a Prober when the caller's context ended
	// before the attempt could be classified.
	ErrProbeAborted = errors.New("probe aborted")
)

// ConfigError describes a configuration value rejected before any network activity.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}
