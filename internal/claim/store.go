package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/claimd/internal/infrastructure/database"
)

// Store persists device records and performs the claim transition.
// This abstraction lets the service run against a substitute store in tests.
type Store interface {
	// Insert creates an unclaimed device.
	// Returns *DuplicateError (ErrDuplicate) if unique_id or token_hash is taken.
	Insert(ctx context.Context, uniqueID, tokenHash, name string) (*DeviceRecord, error)

	// FindByTokenHash looks a device up without modifying it.
	// Returns ErrNotFound if no device has that hash.
	FindByTokenHash(ctx context.Context, tokenHash string) (*DeviceRecord, error)

	// Claim atomically marks the matching unclaimed device as claimed.
	// Returns ErrNotFound if the hash is unknown or already claimed.
	Claim(ctx context.Context, tokenHash string) (*DeviceRecord, error)

	// List returns one page of devices, newest first.
	List(ctx context.Context, filter ListFilter) (*DevicePage, error)

	// CheckHealth verifies the store is reachable.
	CheckHealth(ctx context.Context) error
}

// Executor runs statements against the durable store.
// Implemented by *database.Manager.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*database.RowSet, error)
	HealthCheck(ctx context.Context) error
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// deviceColumns is the column list every statement returns.
const deviceColumns = "id, unique_id, token_hash, claimed, name, created_at, claimed_at"

// SQLStore implements Store on a database.Manager.
//
// Uniqueness is enforced by the table's constraints, never by a prior
// existence check, and the claim transition is one conditional UPDATE. Both
// hold across independent processes sharing the same database.
type SQLStore struct {
	db  Executor
	now func() time.Time
}

// NewSQLStore creates a store backed by db.
func NewSQLStore(db Executor) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Insert creates an unclaimed device.
func (s *SQLStore) Insert(ctx context.Context, uniqueID, tokenHash, name string) (*DeviceRecord, error) {
	query := `
		INSERT INTO devices (id, unique_id, token_hash, claimed, name, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		RETURNING ` + deviceColumns

	rs, err := s.db.Execute(ctx, query,
		"dev-"+uuid.NewString(),
		uniqueID,
		tokenHash,
		sql.NullString{String: name, Valid: name != ""},
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		if errors.Is(err, database.ErrUniqueViolation) {
			return nil, duplicateFrom(err)
		}
		return nil, storeError("inserting device", err)
	}

	if rs.Len() != 1 {
		return nil, fmt.Errorf("%w: insert returned %d rows", ErrInvariantViolation, rs.Len())
	}
	return scanRecord(rs.Row(0))
}

// FindByTokenHash looks a device up without modifying it.
//
// LIMIT 2 rather than 1 so that a broken uniqueness constraint is detected
// instead of one match being picked silently.
func (s *SQLStore) FindByTokenHash(ctx context.Context, tokenHash string) (*DeviceRecord, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE token_hash = $1 LIMIT 2`

	rs, err := s.db.Execute(ctx, query, tokenHash)
	if err != nil {
		return nil, storeError("querying device by token hash", err)
	}

	switch rs.Len() {
	case 0:
		return nil, ErrNotFound
	case 1:
		return scanRecord(rs.Row(0))
	default:
		return nil, fmt.Errorf("%w: %d devices share one token hash", ErrInvariantViolation, rs.Len())
	}
}

// Claim atomically marks the matching unclaimed device as claimed.
//
// The single conditional UPDATE is the only concurrency control: of any
// number of concurrent callers, at most one sees a returned row.
func (s *SQLStore) Claim(ctx context.Context, tokenHash string) (*DeviceRecord, error) {
	query := `
		UPDATE devices
		SET claimed = TRUE, claimed_at = $1
		WHERE token_hash = $2 AND claimed = FALSE
		RETURNING ` + deviceColumns

	rs, err := s.db.Execute(ctx, query, s.now().UTC().Format(timeLayout), tokenHash)
	if err != nil {
		return nil, storeError("claiming device", err)
	}

	switch rs.Len() {
	case 0:
		return nil, ErrNotFound
	case 1:
		return scanRecord(rs.Row(0))
	default:
		return nil, fmt.Errorf("%w: claim updated %d devices", ErrInvariantViolation, rs.Len())
	}
}

// CheckHealth verifies the store is reachable.
func (s *SQLStore) CheckHealth(ctx context.Context) error {
	if err := s.db.HealthCheck(ctx); err != nil {
		return storeError("health check", err)
	}
	return nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// duplicateFrom names the collided field from the constraint the store reported.
func duplicateFrom(err error) error {
	dup := &DuplicateError{}

	var ce *database.ConstraintError
	if errors.As(err, &ce) {
		switch {
		case strings.Contains(ce.Constraint, "unique_id"):
			dup.Field = "unique_id"
		case strings.Contains(ce.Constraint, "token_hash"):
			dup.Field = "token_hash"
		}
	}
	return dup
}

// scanRecord converts a devices row into a DeviceRecord.
func scanRecord(row database.Row) (*DeviceRecord, error) {
	var (
		rec  DeviceRecord
		errs []error
	)

	str := func(col string) string {
		v, err := row.String(col)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	rec.ID = str("id")
	rec.UniqueID = str("unique_id")
	rec.TokenHash = str("token_hash")
	rec.Name = str("name")
	createdAt := str("created_at")
	claimedAt := str("claimed_at")

	claimed, err := row.Bool("claimed")
	if err != nil {
		errs = append(errs, err)
	}
	rec.Claimed = claimed

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: scanning device: %w", ErrInvariantViolation, errors.Join(errs...))
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("%w: parsing created_at: %w", ErrInvariantViolation, err)
	}
	if claimedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, claimedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing claimed_at: %w", ErrInvariantViolation, err)
		}
		rec.ClaimedAt = &t
	}

	return &rec, nil
}
