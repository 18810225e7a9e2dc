package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the SQLite database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the SQLite database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
	pgUniqueViolation = "23505"
)

// Logger is the logging surface the manager needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Manager owns the connection pool to the durable store.
//
// It is constructed explicitly with Open and handed to the components that
// need it; there is no package-level pool. Statements run through Execute,
// which borrows one pooled connection and always returns it.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Shutdown may run while statements are in flight; those finish first.
type Manager struct {
	db     *sql.DB
	cfg    Config
	policy TLSPolicy
	logger Logger

	// mu guards closing so that inflight.Add never races inflight.Wait.
	// closing is set once by the first Shutdown and never cleared.
	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup

	faults atomic.Int64
}

// Open builds the connection pool described by cfg and verifies it with a ping.
//
// For postgres the transport security is chosen by SelectTLS. For sqlite3
// the database directory is created and the pool is limited to one writer.
//
// Parameters:
//   - ctx: Context bounding the connectivity check
//   - cfg: Database configuration
//   - logger: Destination for pool lifecycle and fault messages (nil uses slog.Default)
//
// Returns:
//   - *Manager: Connected manager
//   - error: If configuration is invalid or the store is unreachable
func Open(ctx context.Context, cfg Config, logger Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:    cfg,
		logger: logger,
	}

	var (
		connector driver.Connector
		err       error
	)
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "postgresql", "pgx":
		m.cfg.Driver = DriverPostgres
		connector, m.policy, err = postgresConnector(cfg)
	case DriverSQLite, "sqlite":
		m.cfg.Driver = DriverSQLite
		connector, err = sqliteConnector(cfg)
	default:
		err = fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	m.db = sql.OpenDB(&faultObservingConnector{Connector: connector, onFault: m.recordFault})
	m.configurePool()

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := m.db.PingContext(pingCtx); err != nil {
		m.db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if m.cfg.Driver == DriverSQLite {
		// Ignore error - file might not exist yet on first run, will be set after first write
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later
	}

	logger.Info("database pool initialised",
		"driver", m.cfg.Driver,
		"tls", m.policy.String(),
		"max_open_conns", m.maxOpenConns(),
	)

	return m, nil
}

// postgresConnector parses the connection settings and applies the TLS policy.
func postgresConnector(cfg Config) (driver.Connector, TLSPolicy, error) {
	dsn, err := cfg.postgresDSN()
	if err != nil {
		return nil, TLSDisabled, err
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, TLSDisabled, fmt.Errorf("%w: parsing connection settings: %w", ErrInvalidConfig, err)
	}

	policy, tlsConfig, err := SelectTLS(cfg)
	if err != nil {
		return nil, TLSDisabled, err
	}
	if tlsConfig != nil {
		tlsConfig.ServerName = connConfig.Host
	}

	// Exactly one policy applies: no sslmode=prefer style fallbacks.
	connConfig.TLSConfig = tlsConfig
	connConfig.Fallbacks = nil

	return stdlib.GetConnector(*connConfig), policy, nil
}

// sqliteConnector prepares the SQLite file location and returns a connector for it.
func sqliteConnector(cfg Config) (driver.Connector, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	return &dsnConnector{dsn: cfg.sqliteDSN(), driver: &sqlite3.SQLiteDriver{}}, nil
}

// configurePool applies pool sizing.
func (m *Manager) configurePool() {
	if m.cfg.Driver == DriverSQLite {
		// SQLite works best with a single writer
		m.db.SetMaxOpenConns(1)
		m.db.SetMaxIdleConns(1)
	} else {
		m.db.SetMaxOpenConns(m.cfg.MaxOpenConns)
		m.db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	}
	m.db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	m.db.SetConnMaxIdleTime(m.cfg.ConnMaxIdleTime)
}

func (m *Manager) maxOpenConns() int {
	return m.db.Stats().MaxOpenConnections
}

// recordFault is called when a pooled connection reports it can no longer be used.
// The connection is discarded by database/sql; the rest of the pool is unaffected.
func (m *Manager) recordFault(err error) {
	n := m.faults.Add(1)
	m.logger.Warn("discarding faulted pooled connection",
		"driver", m.cfg.Driver,
		"error", err,
		"faults_total", n,
	)
}

// enter admits one statement unless shutdown has begun.
func (m *Manager) enter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return ErrClosed
	}
	m.inflight.Add(1)
	return nil
}

// Execute runs one statement on a borrowed pooled connection and returns all rows.
//
// The connection goes back to the pool on every path, including errors.
// Uniqueness violations are returned as *ConstraintError (matching
// ErrUniqueViolation). Borrowing blocks while the pool is saturated; bound it
// with ctx if needed.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL with $n placeholders
//   - args: Arguments for placeholders
//
// Returns:
//   - *RowSet: Materialised result (empty for statements without RETURNING)
//   - error: ErrClosed after shutdown, or the wrapped driver error
func (m *Manager) Execute(ctx context.Context, query string, args ...any) (*RowSet, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.inflight.Done()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("borrowing connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Returns the connection to the pool

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", classify(err))
	}
	defer rows.Close()

	rs, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", classify(err))
	}
	return rs, nil
}

// classify converts driver uniqueness violations into *ConstraintError.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &ConstraintError{Constraint: pgErr.ConstraintName, Err: err}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return &ConstraintError{Constraint: sqliteConstraint(liteErr.Error()), Err: err}
	}

	return err
}

// sqliteConstraint extracts "table.column" from "UNIQUE constraint failed: table.column".
func sqliteConstraint(msg string) string {
	if _, after, ok := strings.Cut(msg, "constraint failed: "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// Shutdown stops admitting statements, waits for in-flight ones, then closes the pool.
//
// Only the first call does any work. Any later call, including one made
// while the first is still draining, returns nil at once without waiting.
// If ctx expires before in-flight statements drain, the pool is closed
// anyway, so a signal handler bounded by a grace period can rely on it.
//
// Returns:
//   - error: If closing the pool fails (first call only)
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.mu.Unlock()

	m.logger.Info("shutting down database pool", "in_use", m.db.Stats().InUse)

	drained := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("shutdown deadline reached with statements in flight", "error", ctx.Err())
	}

	if err := m.db.Close(); err != nil {
		m.logger.Error("error while closing pool", "error", err)
		return fmt.Errorf("closing database: %w", err)
	}
	m.logger.Info("database pool closed")
	return nil
}

// Close shuts the manager down without a deadline.
// It exists so the manager can be used with defer like other closers.
func (m *Manager) Close() error {
	return m.Shutdown(context.Background())
}

// HealthCheck verifies the store is reachable through the pool.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (m *Manager) HealthCheck(ctx context.Context) error {
	if _, err := m.Execute(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
func (m *Manager) Stats() sql.DBStats {
	return m.db.Stats()
}

// Faults returns how many pooled connections have been discarded after a fault.
func (m *Manager) Faults() int64 {
	return m.faults.Load()
}

// Policy returns the transport security applied to connections.
func (m *Manager) Policy() TLSPolicy {
	return m.policy
}

// Driver returns the normalised driver name.
func (m *Manager) Driver() string {
	return m.cfg.Driver
}
