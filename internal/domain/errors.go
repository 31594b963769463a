package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("record not found or not authorized")
	ErrUsernameTaken  = errors.New("username already exists")
	ErrEmailTaken     = errors.New("email already exists")
	ErrValidation     = errors.New("validation failed")
	ErrBadCredentials = errors.New("invalid username or password")
	ErrBadResetToken  = errors.New("invalid or expired reset token")
	ErrInternal       = errors.New("internal server error")
)

// Validationf builds a validation error with a caller-facing description.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFoundError checks if an error is a not-found type error. An ownership
// failure on a record is deliberately indistinguishable from a missing one.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrRecordNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if an error is a uniqueness conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken)
}
