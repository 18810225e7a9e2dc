package database

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// Migration is one versioned schema step. Files are named
// YYYYMMDD_HHMMSS_name.up.sql with an optional matching .down.sql.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// Migrate applies every migration in fsys not yet recorded in
// schema_migrations, oldest first, one transaction each. On failure the
// failing step is rolled back, earlier steps stay, and a rerun resumes there.
func (m *Manager) Migrate(ctx context.Context, fsys fs.FS) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.inflight.Done()

	if _, err := m.db.ExecContext(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	all, err := loadMigrations(fsys)
	if err != nil {
		return err
	}
	done, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range pendingMigrations(all, done) {
		err := m.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)",
				mig.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s_%s: %w", mig.Version, mig.Name, err)
		}
		m.logger.Info("migration applied", "version", mig.Version, "name", mig.Name)
	}
	return nil
}

// MigrateDown reverts the newest applied migration using its .down.sql.
func (m *Manager) MigrateDown(ctx context.Context, fsys fs.FS) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.inflight.Done()

	done, err := m.appliedMigrations(ctx)
	if err != nil || len(done) == 0 {
		return err
	}
	newest := done[len(done)-1].Version

	all, err := loadMigrations(fsys)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(mig Migration) bool { return mig.Version == newest })
	switch {
	case i < 0:
		return fmt.Errorf("applied migration %s has no file", newest)
	case all[i].DownSQL == "":
		return fmt.Errorf("migration %s has no down SQL", newest)
	}

	return m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, all[i].DownSQL); err != nil {
			return fmt.Errorf("reverting %s: %w", newest, err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", newest)
		return err
	})
}

// MigrationStatus reports what has been applied and what is still pending.
func (m *Manager) MigrationStatus(ctx context.Context, fsys fs.FS) (applied []MigrationRecord, pending []Migration, err error) {
	if err := m.enter(); err != nil {
		return nil, nil, err
	}
	defer m.inflight.Done()

	if applied, err = m.appliedMigrations(ctx); err != nil {
		return nil, nil, err
	}
	all, err := loadMigrations(fsys)
	if err != nil {
		return nil, nil, err
	}
	return applied, pendingMigrations(all, applied), nil
}

func (m *Manager) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the fn error is the one worth reporting
		return err
	}
	return tx.Commit()
}

func (m *Manager) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		var at string
		if err := rows.Scan(&rec.Version, &at); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		rec.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		out = append(out, rec)
	}
	return out, rows.Err()
}

func pendingMigrations(all []Migration, applied []MigrationRecord) []Migration {
	seen := make(map[string]struct{}, len(applied))
	for _, rec := range applied {
		seen[rec.Version] = struct{}{}
	}
	var out []Migration
	for _, mig := range all {
		if _, ok := seen[mig.Version]; !ok {
			out = append(out, mig)
		}
	}
	return out
}

// loadMigrations reads the top level of fsys. Files that do not follow the
// naming scheme are ignored, as is a version with only a .down.sql.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, name := range names {
		version, up, ok := parseMigrationFilename(name)
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}
		if up {
			mig.Name = extractMigrationName(name)
			mig.UpSQL = string(body)
		} else {
			mig.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL != "" {
			out = append(out, *mig)
		}
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// splitMigrationFilename strips ".sql" and the direction suffix, returning
// the remaining stem.
func splitMigrationFilename(name string) (stem string, up bool, ok bool) {
	stem, ok = strings.CutSuffix(name, ".sql")
	if !ok {
		return "", false, false
	}
	if s, found := strings.CutSuffix(stem, ".up"); found {
		return s, true, true
	}
	if s, found := strings.CutSuffix(stem, ".down"); found {
		return s, false, true
	}
	return "", false, false
}

// parseMigrationFilename returns the YYYYMMDD_HHMMSS version and direction.
func parseMigrationFilename(name string) (version string, isUp bool, ok bool) {
	stem, isUp, ok := splitMigrationFilename(name)
	if !ok {
		return "", false, false
	}
	date, rest, found := strings.Cut(stem, "_")
	if !found {
		return "", false, false
	}
	clock, _, _ := strings.Cut(rest, "_")
	return date + "_" + clock, isUp, true
}

// extractMigrationName returns the part after the version,
// e.g. "20260301_120000_devices.up.sql" gives "devices".
func extractMigrationName(filename string) string {
	stem, _, ok := splitMigrationFilename(filename)
	if !ok {
		stem = strings.TrimSuffix(filename, ".sql")
	}
	parts := strings.SplitN(stem, "_", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return stem
}
