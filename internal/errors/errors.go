// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAlreadyRunning    = errors.New("a training job is already running")
	ErrModelNotFound     = errors.New("model version not found")
	ErrModelNotReady     = errors.New("model version is not in ready state")
	ErrModelDeployed     = errors.New("model version is currently deployed")
	ErrNoPreviousVersion = errors.New("no previous ready version to roll back to")
	ErrRolloutNotFound   = errors.New("rollout not found")
	ErrRolloutNotActive  = errors.New("rollout is not active")
	ErrSameVersion       = errors.New("rollout requires two distinct versions")
	ErrJobNotFound       = errors.New("training job not found")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrNoDeployedModel   = errors.New("no model version is deployed")
	ErrTimeout           = errors.New("operation timed out")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrStoreClosed       = errors.New("version store is closed")
)

// ConfigError represents an invalid configuration value detected at
// registration or load time, never at runtime.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error [%s] (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigInvalid
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// DataError represents insufficient or poor-quality trade data.
// It aborts the current job; the next scheduled run retries from scratch.
type DataError struct {
	Stage   string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", e.Stage, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(stage, message string, err error) *DataError {
	return &DataError{Stage: stage, Message: message, Err: err}
}

// TrainingError represents a trainer failure or unmet deployment
// criteria. It aborts deployment only; the artifact may still be
// persisted as ready.
type TrainingError struct {
	JobID   string
	Stage   string
	Message string
	Err     error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training error [%s] %s: %s: %v", e.JobID, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("training error [%s] %s: %s", e.JobID, e.Stage, e.Message)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// NewTrainingError creates a new TrainingError.
func NewTrainingError(jobID, stage, message string, err error) *TrainingError {
	return &TrainingError{JobID: jobID, Stage: stage, Message: message, Err: err}
}

// IsTimeout reports whether the training failure was caused by the
// external trainer or collector exceeding its deadline.
func (e *TrainingError) IsTimeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// DeploymentError represents a synchronous deployment or rollback
// failure. The system remains in its last-known-good state.
type DeploymentError struct {
	Version   string
	Operation string
	Err       error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment error [%s] %s: %v", e.Version, e.Operation, e.Err)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// NewDeploymentError creates a new DeploymentError.
func NewDeploymentError(version, operation string, err error) *DeploymentError {
	return &DeploymentError{Version: version, Operation: operation, Err: err}
}

// MonitoringError represents a best-effort monitoring failure. It is
// logged and never propagated to callers feeding trade data.
type MonitoringError struct {
	Operation string
	Err       error
}

func (e *MonitoringError) Error() string {
	return fmt.Sprintf("monitoring error [%s]: %v", e.Operation, e.Err)
}

func (e *MonitoringError) Unwrap() error {
	return e.Err
}

// NewMonitoringError creates a new MonitoringError.
func NewMonitoringError(operation string, err error) *MonitoringError {
	return &MonitoringError{Operation: operation, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
