// Package errors defines the sentinel error taxonomy shared by every
// retrieval component, plus a wrapper type carrying contextual detail.
// Validation failures are raised at the API boundary. Degenerate numeric
// cases (zero-norm vectors, zero-variance posteriors) are resolved
// internally with documented fallbacks and never surface as errors.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFitted         = errors.New("model not fitted")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrOutOfRange        = errors.New("parameter out of range")
	ErrMissingField      = errors.New("required field missing")
	ErrValidation        = errors.New("invalid input")
)

// AppError pairs a sentinel with a human-readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Label classifies an error into a stable string used as a metrics label
// and structured-log field.
func Label(err error) string {
	switch {
	case errors.Is(err, ErrNotFitted):
		return "not_fitted"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
