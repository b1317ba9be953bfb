package safari

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the safari service.
var (
	ErrValidation        = errors.New("validation failed")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExpired    = errors.New("already expired")
	ErrNotConfirmed      = errors.New("reservation not confirmed")
	ErrFullyAssigned     = errors.New("fully assigned")
	ErrVehicleFull       = errors.New("vehicle full")
	ErrRunLocked         = errors.New("run locked")
	ErrUnavailable       = errors.New("resource unavailable")
	ErrMissingDriver     = errors.New("missing driver")
	ErrNotReady          = errors.New("run not ready")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyInState    = errors.New("already in state")
	ErrConflict          = errors.New("write conflict")

	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
