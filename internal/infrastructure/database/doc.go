// Package database owns the connection pool to the durable device store.
//
// This package manages:
//   - Pool construction for PostgreSQL (pgx) and SQLite (go-sqlite3)
//   - Transport security selection for PostgreSQL (see SelectTLS)
//   - Statement execution on borrowed connections with guaranteed release
//   - Uniqueness-violation classification (ErrUniqueViolation)
//   - Fault isolation for pooled connections that die while idle
//   - Idempotent graceful shutdown
//   - Schema migrations from an fs.FS
//
// Security Considerations:
//   - All statements use $n placeholders (no SQL injection)
//   - Connection passwords and CA material are never logged
//   - SQLite file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	mgr, err := database.Open(ctx, database.Config{URL: dsn}, logger)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	if err := mgr.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
//	rs, err := mgr.Execute(ctx, "SELECT id FROM devices WHERE unique_id = $1", uid)
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and must use SQL portable across both drivers.
//
// Placeholders must be numbered in order of first appearance ($1 before $2):
// SQLite treats $n as a named parameter and numbers them as it meets them.
package database
