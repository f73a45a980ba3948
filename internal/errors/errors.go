package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeDesignInvalid  = "DESIGN_INVALID"
	CodeCohortInvalid  = "COHORT_INVALID"
	CodeGridMismatch   = "GRID_MISMATCH"
	CodeNullLogCorrupt = "NULL_LOG_CORRUPT"
	CodeComputeFailed  = "COMPUTE_FAILED"
	CodeIOError        = "IO_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DesignInvalid(message string) *AppError {
	return New(CodeDesignInvalid, message)
}

func CohortInvalid(message string) *AppError {
	return New(CodeCohortInvalid, message)
}

// GridMismatch reports a lesion volume whose voxel grid does not match the
// reference template grid.
func GridMismatch(subject string, got, want [3]int) *AppError {
	return New(CodeGridMismatch, fmt.Sprintf(
		"subject %s: lesion grid %dx%dx%d does not match template grid %dx%dx%d",
		subject, got[0], got[1], got[2], want[0], want[1], want[2]))
}

func NullLogCorrupt(message string) *AppError {
	return New(CodeNullLogCorrupt, message)
}

func ComputeFailed(message string) *AppError {
	return New(CodeComputeFailed, message)
}

func IOError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeIOError,
		Message: message,
		Cause:   cause,
	}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
