package common

import (
	"fmt"

	"github.com/cockroachdb/errors"
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

// Error kinds. Typed errors mark themselves with one of these so callers
// can branch with errors.Is regardless of wrapping.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("configuration error")
	ErrExtraction   = errors.New("extraction failed")
	ErrStorage      = errors.New("storage error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// kindError tags an error with one of the kind sentinels above.
type kindError struct {
	err  error
	kind error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Mark tags err with a kind sentinel while keeping its message. The kind is
// visible to both the standard library and cockroachdb errors.Is.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return &kindError{err: err, kind: kind}
}

func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
