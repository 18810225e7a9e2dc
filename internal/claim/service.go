package claim

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Logger is the logging surface the service needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service implements issue, register, validate and claim over a Store.
//
// It holds no per-device state; concurrent calls are coordinated entirely
// by the store. Taxonomy errors from the store pass through unchanged.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	store  Store
	codec  *Codec
	logger Logger
	now    func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

// NewService creates a claim service.
func NewService(store Store, codec *Codec, logger Logger) *Service {
	return &Service{
		store:  store,
		codec:  codec,
		logger: logger,
		now:    time.Now,
	}
}

// AddObserver registers an observer for operation events.
func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Issue generates a new claim token. Nothing is persisted; a token that is
// never registered is simply unused.
func (s *Service) Issue(ctx context.Context) (IssuedToken, error) {
	tok, err := s.codec.Issue()
	s.emit(ctx, Event{Op: OpIssue, Outcome: OutcomeOf(err)})
	if err != nil {
		s.logger.Error("issuing token failed", "error", err)
		return IssuedToken{}, err
	}
	return tok, nil
}

// Register persists a new unclaimed device.
//
// Returns ErrInvalidInput for a malformed request and ErrDuplicate (as
// *DuplicateError) when unique_id or token hash is already registered.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*DeviceRecord, error) {
	uniqueID, tokenHash, name, err := req.Resolve()
	if err != nil {
		s.emit(ctx, Event{Op: OpRegister, Outcome: OutcomeInvalid, UniqueID: req.UniqueID})
		return nil, err
	}

	rec, err := s.store.Insert(ctx, uniqueID, tokenHash, name)
	ev := Event{Op: OpRegister, Outcome: OutcomeOf(err), UniqueID: uniqueID}
	if rec != nil {
		ev.DeviceID = rec.ID
	}
	s.emit(ctx, ev)

	switch {
	case err == nil:
		s.logger.Info("device registered", "unique_id", uniqueID, "device_id", rec.ID)
		return rec, nil
	case errors.Is(err, ErrDuplicate):
		s.logger.Debug("device registration rejected", "unique_id", uniqueID, "error", err)
	default:
		s.logger.Error("device registration failed", "unique_id", uniqueID, "error", err)
	}
	return nil, err
}

// Validate reports whether exactly one registered device matches raw.
// A claimed device still validates. The record itself is never returned.
func (s *Service) Validate(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		s.emit(ctx, Event{Op: OpValidate, Outcome: OutcomeInvalid})
		return false, invalid("token is required")
	}

	rec, err := s.store.FindByTokenHash(ctx, HashToken(raw))
	ev := Event{Op: OpValidate, Outcome: OutcomeOf(err)}
	if rec != nil {
		ev.UniqueID = rec.UniqueID
		ev.DeviceID = rec.ID
	}
	s.emit(ctx, ev)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	case errors.Is(err, ErrInvariantViolation):
		s.logger.Error("token validation hit invariant violation", "error", err)
	default:
		s.logger.Error("token validation failed", "error", err)
	}
	return false, err
}

// Claim transitions the device matching raw from unclaimed to claimed.
//
// Returns ErrNotFound when the token is unknown or was already claimed.
// Claiming twice is therefore safe: the second call reports ErrNotFound.
func (s *Service) Claim(ctx context.Context, raw string) (*DeviceRecord, error) {
	if raw == "" {
		s.emit(ctx, Event{Op: OpClaim, Outcome: OutcomeInvalid})
		return nil, invalid("token is required")
	}

	rec, err := s.store.Claim(ctx, HashToken(raw))
	ev := Event{Op: OpClaim, Outcome: OutcomeOf(err)}
	if rec != nil {
		ev.UniqueID = rec.UniqueID
		ev.DeviceID = rec.ID
	}
	s.emit(ctx, ev)

	switch {
	case err == nil:
		s.logger.Info("device claimed", "unique_id", rec.UniqueID, "device_id", rec.ID)
		return rec, nil
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("claim rejected: unknown or already claimed")
	default:
		s.logger.Error("claim failed", "error", err)
	}
	return nil, err
}

// List returns one page of registered devices. Token hashes are never
// serialised, so the page is safe to hand to an operator.
func (s *Service) List(ctx context.Context, filter ListFilter) (*DevicePage, error) {
	page, err := s.store.List(ctx, filter)
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		return nil, err
	}
	return page, nil
}

// CheckHealth reports whether the underlying store is reachable.
func (s *Service) CheckHealth(ctx context.Context) error {
	return s.store.CheckHealth(ctx)
}

func (s *Service) emit(ctx context.Context, ev Event) {
	ev.At = s.now().UTC()

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, o := range observers {
		o.Observe(ctx, ev)
	}
}
