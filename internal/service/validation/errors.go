package validation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the validation service layer.
var (
	ErrNotFound     = errors.New("validation record not found")
	ErrEmptyAddress = errors.New("email is required")
)

// ValidationError reports that an address failed validation, either now or
// on a previous check still in the cache.
type ValidationError struct {
	Email  string
	Reason string
	Code   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("address %s rejected: %s", e.Email, e.Reason)
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
