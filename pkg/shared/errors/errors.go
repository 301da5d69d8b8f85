package errors

import (
	stderrors "errors"
	"fmt"
)

// maxBodyLen bounds the response body kept on a FatalAPIError.
const maxBodyLen = 512

// ConfigError reports a missing or invalid configuration parameter.
// It is raised before any network call is made.
type ConfigError struct {
	Source string
	Field  string
	Reason string
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("source %q: invalid %q: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %q: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given source and field.
func NewConfigError(source, field, reason string) *ConfigError {
	return &ConfigError{Source: source, Field: field, Reason: reason}
}

// TransientAPIError is returned once retries against a retryable failure are exhausted.
type TransientAPIError struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

// Error implements the error interface for TransientAPIError.
func (e *TransientAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s failed after %d attempt(s) with status %d", e.Method, e.URL, e.Attempts, e.StatusCode)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// NewTransientAPIError creates a TransientAPIError.
func NewTransientAPIError(method, url string, status, attempts int, err error) *TransientAPIError {
	return &TransientAPIError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Attempts:   attempts,
		Err:        err,
	}
}

// FatalAPIError is returned for non-retryable API failures: 4xx other than 429,
// unexpected statuses and malformed JSON bodies.
type FatalAPIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface for FatalAPIError.
func (e *FatalAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *FatalAPIError) Unwrap() error { return e.Err }

// NewFatalAPIError creates a FatalAPIError, truncating the body for diagnostics.
func NewFatalAPIError(method, url string, status int, body []byte, err error) *FatalAPIError {
	return &FatalAPIError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Body:       Truncate(string(body), maxBodyLen),
		Err:        err,
	}
}

// NormalizationError is raised while deriving fields from a record.
// It never leaves the normalizer.
type NormalizationError struct {
	Stage string
	Err   error
}

// Error implements the error interface for NormalizationError.
func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization stage %q: %v", e.Stage, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// NewNormalizationError creates a NormalizationError.
func NewNormalizationError(stage string, err error) *NormalizationError {
	return &NormalizationError{Stage: stage, Err: err}
}

// PersistenceError reports a checkpoint read or write failure.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface for PersistenceError.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError creates a PersistenceError.
func NewPersistenceError(op, key string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Key: key, Err: err}
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return stderrors.As(err, &target)
}

// IsTransient reports whether err wraps a TransientAPIError.
func IsTransient(err error) bool {
	var target *TransientAPIError
	return stderrors.As(err, &target)
}

// IsFatal reports whether err wraps a FatalAPIError.
func IsFatal(err error) bool {
	var target *FatalAPIError
	return stderrors.As(err, &target)
}

// IsPersistence reports whether err wraps a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return stderrors.As(err, &target)
}

// Truncate shortens s to at most n bytes, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// CommandError carries the process exit code of a failed CLI command.
type CommandError struct {
	ExitCode int
	Err      error
}

// Error implements the error interface, returning the message of the wrapped error.
func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError creates a new CommandError with the given exit code.
func NewCommandError(err error, code int) *CommandError {
	return &CommandError{ExitCode: code, Err: err}
}

// ExitCode returns the exit code carried by err: 0 for nil, 1 when err carries none.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var target *CommandError
	if stderrors.As(err, &target) {
		return target.ExitCode
	}
	return 1
}
