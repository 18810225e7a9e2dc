package database

import (
	"errors"
	"fmt"
)

// Domain-specific errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned when a statement is submitted after Shutdown has begun.
	ErrClosed = errors.New("database: manager is shut down")

	// ErrUniqueViolation is returned when a statement violates a UNIQUE or
	// PRIMARY KEY constraint. The concrete error is a *ConstraintError.
	ErrUniqueViolation = errors.New("database: unique constraint violated")

	// ErrInvalidConfig is returned when the connection configuration is unusable
	// (unknown driver, unreadable CA material, malformed connection URL).
	ErrInvalidConfig = errors.New("database: invalid configuration")
)

// ConstraintError describes a uniqueness violation reported by the store.
//
// Constraint holds whatever the driver reports: the constraint name for
// PostgreSQL (e.g. "devices_token_hash_key"), or the "table.column" list for
// SQLite (e.g. "devices.unique_id").
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s: %v", ErrUniqueViolation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", ErrUniqueViolation, e.Constraint, e.Err)
}

// Unwrap exposes the driver error.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUniqueViolation) match any ConstraintError.
func (e *ConstraintError) Is(target error) bool {
	return target == ErrUniqueViolation
}
