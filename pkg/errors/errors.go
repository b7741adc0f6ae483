package errors

import (
	"errors"
	"fmt"
)

// Error codes used across the engine.
const (
	CodeConfiguration    = "CONFIGURATION"
	CodeComponent        = "COMPONENT"
	CodeFatal            = "FATAL"
	CodeCancelled        = "CANCELLED"
	CodeReduction        = "REDUCTION"
	CodeDatastore        = "DATASTORE"
	CodeNotDistributable = "NOT_DISTRIBUTABLE"
)

var (
	// ErrConfiguration indicates that a job or component is misconfigured.
	// Configuration errors are detected before row processing starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrFatal marks an error that aborts the whole run
	ErrFatal = errors.New("fatal error")

	// ErrCancelled indicates that a run was stopped by request
	ErrCancelled = errors.New("analysis job cancelled")

	// ErrIncompatibleResults indicates that partial results of different kinds were reduced together
	ErrIncompatibleResults = errors.New("incompatible partial results")

	// ErrNotDistributable indicates that a job contains components that cannot run partitioned
	ErrNotDistributable = errors.New("job is not distributable")

	// ErrDatastore indicates a datastore connectivity or read failure
	ErrDatastore = errors.New("datastore failure")

	// ErrUnknownComponent indicates that no descriptor is registered under a name
	ErrUnknownComponent = errors.New("unknown component")
)

// Error represents a structured engine error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches coded errors against the sentinel of their code, so
// errors.Is(NewConfigurationError(...), ErrConfiguration) holds even when
// the wrapped cause is something else.
func (e *Error) Is(target error) bool {
	if sentinel, ok := codeSentinels[e.Code]; ok {
		return sentinel == target
	}
	return false
}

var codeSentinels = map[string]error{
	CodeConfiguration:    ErrConfiguration,
	CodeFatal:            ErrFatal,
	CodeCancelled:        ErrCancelled,
	CodeReduction:        ErrIncompatibleResults,
	CodeDatastore:        ErrDatastore,
	CodeNotDistributable: ErrNotDistributable,
}

// NewError creates a new engine error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Configuration creates a configuration error with a formatted message
func Configuration(format string, args ...interface{}) *Error {
	return NewError(CodeConfiguration, fmt.Sprintf(format, args...), nil)
}

// Fatal wraps err so that the runner aborts the run when a component returns it
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return NewError(CodeFatal, "unrecoverable failure", err)
}

// Datastore wraps a datastore failure. Datastore failures are always fatal.
func Datastore(message string, err error) *Error {
	return NewError(CodeDatastore, message, err)
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsFatal checks if an error must abort the run
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal) || errors.Is(err, ErrDatastore)
}

// IsCancellation checks if an error records a cancellation
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// CancellationError is the marker recorded on a result future when a run is
// cancelled. It is kept apart from failures so callers can tell
// "stopped by request" from "failed".
type CancellationError struct {
	RunID string
}

func (e *CancellationError) Error() string {
	if e.RunID == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s (run %s)", ErrCancelled.Error(), e.RunID)
}

// Is reports whether target is ErrCancelled
func (e *CancellationError) Is(target error) bool {
	return target == ErrCancelled
}
