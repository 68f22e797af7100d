package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy for the export engine. Every failure path surfaces one of
// these sentinels so that the HTTP layer and the CLI can map classes to
// status codes and exit codes without string matching.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrCapacity     = errors.New("concurrency cap exceeded")
	ErrDataSource   = errors.New("data source failure")
	ErrSink         = errors.New("sink write failure")
	ErrCancelled    = errors.New("export cancelled")
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflicting job state")
	ErrInternal     = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ValidationErrorf builds a validation failure with a formatted detail.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UnauthorizedErrorf builds an authorization failure with a formatted detail.
func UnauthorizedErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
