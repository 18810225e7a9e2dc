package claim

import (
	"context"
	"errors"
	"time"
)

// Op identifies a service operation.
type Op string

// Service operations.
const (
	OpIssue    Op = "issue"
	OpRegister Op = "register"
	OpValidate Op = "validate"
	OpClaim    Op = "claim"
)

// Outcome classifies how an operation ended.
type Outcome string

// Operation outcomes. OutcomeNotFound covers both unknown and already
// claimed tokens, and a false Validate.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeInvalid   Outcome = "invalid_input"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeStore     Outcome = "store_error"
	OutcomeInvariant Outcome = "invariant_violation"
)

// Event describes one completed service operation.
//
// Events carry identifiers only. The raw token and its hash never appear.
type Event struct {
	Op       Op        `json:"op"`
	Outcome  Outcome   `json:"outcome"`
	UniqueID string    `json:"unique_id,omitempty"`
	DeviceID string    `json:"device_id,omitempty"`
	At       time.Time `json:"at"`
}

// Observer is notified after every service operation.
// Observers run synchronously on the caller's goroutine and must not block;
// they cannot change the operation's result.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f(ctx, ev).
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// OutcomeOf maps an operation error to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalid
	case errors.Is(err, ErrDuplicate):
		return OutcomeDuplicate
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvariantViolation):
		return OutcomeInvariant
	default:
		return OutcomeStore
	}
}
