package domain

import (
	"errors"
	"fmt"
)

// The error taxonomy drives batch behavior: validation and transient errors
// skip a record or retry a fetch, conflicts retry the conditional write
// once, configuration errors abort a single source's run. No record-level
// error ever aborts a batch.

// ValidationError marks a malformed provider record. The record is skipped
// and the batch continues.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// TransientSourceError marks a retryable external failure: fetch or resolver
// timeout, 5xx, connection reset.
type TransientSourceError struct {
	Err error
}

func (e *TransientSourceError) Error() string { return "transient source error: " + e.Err.Error() }
func (e *TransientSourceError) Unwrap() error { return e.Err }

// ConflictError marks a lost race on a fenced cluster write. The caller
// retries the whole match-or-create once, then records the signal as failed.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string { return "conflict: " + e.Err.Error() }
func (e *ConflictError) Unwrap() error { return e.Err }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Err: fmt.Errorf(format, args...)}
}

// ConfigurationError marks an unusable source definition, typically a
// missing credential. It aborts only that source's run.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configurationf builds a ConfigurationError from a format string.
func Configurationf(format string, args ...any) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsTransient reports whether err is (or wraps) a TransientSourceError.
func IsTransient(err error) bool {
	var target *TransientSourceError
	return errors.As(err, &target)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
