package claim

import (
	"errors"
	"fmt"
)

// Domain errors for the claim package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, claim.ErrNotFound) {
//	    // unknown token or already claimed
//	}
var (
	// ErrInvalidInput is returned when a request is malformed.
	ErrInvalidInput = errors.New("claim: invalid input")

	// ErrDuplicate is returned when a device with the same unique_id or
	// token hash already exists. The concrete error is a *DuplicateError.
	ErrDuplicate = errors.New("claim: device already exists")

	// ErrNotFound is returned when no unclaimed device matches a token.
	// An unknown token and an already-claimed token are indistinguishable.
	ErrNotFound = errors.New("claim: not found")

	// ErrStore is returned when the durable store is unavailable or fails.
	// Always wraps the underlying cause.
	ErrStore = errors.New("claim: store unavailable")

	// ErrInvariantViolation is returned when the store reports a state its
	// constraints should make impossible (e.g. two devices sharing a hash).
	ErrInvariantViolation = errors.New("claim: internal invariant violated")
)

// DuplicateError names which unique field collided.
type DuplicateError struct {
	// Field is "unique_id", "token_hash", or "" when the store did not say.
	Field string
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return ErrDuplicate.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDuplicate, e.Field)
}

// Is makes errors.Is(err, ErrDuplicate) match any DuplicateError.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// IsRetryable reports whether err is transient and the operation may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStore)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
