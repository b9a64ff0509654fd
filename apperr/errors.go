// Package apperr holds the typed error taxonomy shared across the engine.
//
// Configuration and connection errors fail fast at startup, state
// corruption propagates to the supervisor, and everything else
// (validation, gateway calls, risk breaches) is logged and swallowed at
// the component boundary.
package apperr

import "fmt"

// ConfigError represents a missing or invalid configuration value.
// Startup aborts on this error; it is never recovered at runtime.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: missing required values: %v", e.Missing)
}

// ConnectionError wraps a database or broker connection failure.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CorruptionError represents a state snapshot that failed to parse.
// Supervisor does not auto-recover from this; human intervention is required.
type CorruptionError struct {
	StrategyName string
	Err          error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted state snapshot for strategy %q: %v", e.StrategyName, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// ArchiveNotFoundError is returned when no snapshot exists for a strategy.
// This is not a failure — callers start with empty aggregates.
type ArchiveNotFoundError struct {
	StrategyName string
}

func (e *ArchiveNotFoundError) Error() string {
	return fmt.Sprintf("no archived state for strategy %q", e.StrategyName)
}

// ValidationError represents a rejected input to a selector, sizer, or
// scheduler call. Validation errors never propagate as panics; callers
// return a zero value alongside this error and log it.
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %q: %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError without an offending value.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NewValidationErrorWithValue builds a ValidationError carrying the
// offending value for logging.
func NewValidationErrorWithValue(field, reason string, value interface{}) error {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}

// NewArchiveNotFound builds an ArchiveNotFoundError for strategyName.
func NewArchiveNotFound(strategyName string) error {
	return &ArchiveNotFoundError{StrategyName: strategyName}
}

// NewCorruption wraps the underlying parse error for strategyName.
func NewCorruption(strategyName string, err error) error {
	return &CorruptionError{StrategyName: strategyName, Err: err}
}
