package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// testMigrations is a two-step schema used to exercise the runner.
var testMigrations = fstest.MapFS{
	"20260118_120000_create_users.up.sql": {Data: []byte(
		"CREATE TABLE test_users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE);",
	)},
	"20260118_120000_create_users.down.sql": {Data: []byte(
		"DROP TABLE IF EXISTS test_users;",
	)},
	"20260119_090000_create_groups.up.sql": {Data: []byte(
		"CREATE TABLE test_groups (id TEXT PRIMARY KEY);",
	)},
	"20260119_090000_create_groups.down.sql": {Data: []byte(
		"DROP TABLE IF EXISTS test_groups;",
	)},
	"README.md": {Data: []byte("ignored")},
}

func tableExists(t *testing.T, m *Manager, name string) bool {
	t.Helper()
	rs, err := m.Execute(context.Background(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", name)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return rs.Len() == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	m := openTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_users", "test_groups"} {
		if !tableExists(t, m, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := m.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}
	if applied[0].Version != "20260118_120000" {
		t.Errorf("first applied = %s, want 20260118_120000", applied[0].Version)
	}

	// Running again should be idempotent
	if err := m.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateDown verifies migration rollback.
func TestMigrateDown(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	if err := m.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := m.MigrateDown(ctx, testMigrations); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, m, "test_groups") {
		t.Error("test_groups should have been dropped")
	}
	if !tableExists(t, m, "test_users") {
		t.Error("test_users should still exist")
	}

	_, pending, err := m.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending migration, got %d", len(pending))
	}
}

// TestMigrateFailureRollsBack verifies a broken migration leaves earlier ones committed.
func TestMigrateFailureRollsBack(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	broken := fstest.MapFS{
		"20260118_120000_ok.up.sql":     {Data: []byte("CREATE TABLE ok_table (id TEXT);")},
		"20260119_120000_broken.up.sql": {Data: []byte("CREATE TABLE half (id TEXT); NOT VALID SQL;")},
	}

	if err := m.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}

	if !tableExists(t, m, "ok_table") {
		t.Error("ok_table should be committed")
	}
	if tableExists(t, m, "half") {
		t.Error("half should have been rolled back")
	}
}

// TestMigrateNoMigrations verifies an empty or nil filesystem is a no-op.
func TestMigrateNoMigrations(t *testing.T) {
	m := openTestManager(t)
	ctx := context.Background()

	if err := m.Migrate(ctx, fstest.MapFS{}); err != nil {
		t.Errorf("Migrate() with empty FS error = %v", err)
	}
	if err := m.Migrate(ctx, nil); err != nil {
		t.Errorf("Migrate() with nil FS error = %v", err)
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20260301_120000_devices.up.sql",
			wantVersion: "20260301_120000",
			wantIsUp:    true,
			wantOk:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20260301_120000_devices.down.sql",
			wantVersion: "20260301_120000",
			wantOk:      true,
		},
		{
			name:     "not sql file",
			filename: "readme.txt",
		},
		{
			name:     "missing direction",
			filename: "20260301_120000_devices.sql",
		},
		{
			name:     "invalid format",
			filename: "invalid.up.sql",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok {
				if version != tt.wantVersion {
					t.Errorf("version = %v, want %v", version, tt.wantVersion)
				}
				if isUp != tt.wantIsUp {
					t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
				}
			}
		})
	}
}

// TestExtractMigrationName verifies name extraction.
func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_120000_devices.up.sql", "devices"},
		{"20260118_120000_initial_schema.down.sql", "initial_schema"},
		{"20260118_120000_add_claimed_at_to_devices.up.sql", "add_claimed_at_to_devices"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestLoadMigrations_GroupsAndOrders(t *testing.T) {
	fsys := fstest.MapFS{
		"20260302_000000_second.up.sql":   {Data: []byte("SELECT 2;")},
		"20260301_000000_first.up.sql":    {Data: []byte("SELECT 1;")},
		"20260301_000000_first.down.sql":  {Data: []byte("SELECT -1;")},
		"20260303_000000_orphan.down.sql": {Data: []byte("SELECT -3;")},
		"notes.sql":                       {Data: []byte("SELECT 0;")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d migrations, want 2: %+v", len(got), got)
	}
	if got[0].Name != "first" || got[0].DownSQL != "SELECT -1;" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "second" || got[1].DownSQL != "" {
		t.Errorf("second = %+v", got[1])
	}
}
