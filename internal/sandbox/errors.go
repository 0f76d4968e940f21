package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrValidation     = errors.New("validation failed")
	ErrTimeout        = errors.New("execution timed out")
	ErrMissingEntry   = errors.New("entry function not found")
	ErrBusy           = errors.New("an execution is already in progress")
	ErrInvalidRequest = errors.New("invalid execution request")
	ErrGovernorArmed  = errors.New("timeout governor already armed")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsValidation returns true if the error is a validation rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsMissingEntry returns true if the named entry function was not defined.
func IsMissingEntry(err error) bool {
	return errors.Is(err, ErrMissingEntry)
}
