package claim

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/claimd/internal/infrastructure/database"
	"github.com/nerrad567/claimd/migrations"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLiteManager(t *testing.T, path string) *database.Manager {
	t.Helper()
	mgr, err := database.Open(context.Background(), database.Config{
		Driver:      database.DriverSQLite,
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5,
	}, discardLogger())
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { mgr.Close() }) //nolint:errcheck // test cleanup
	return mgr
}

// testStore opens a temporary SQLite database with the real schema applied.
func testStore(t *testing.T) *SQLStore {
	t.Helper()
	return testStores(t, 1)[0]
}

// testStores opens n independent managers on one SQLite file, each standing
// in for a separate claimd process sharing the store.
func testStores(t *testing.T, n int) []*SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claim-test.db")

	stores := make([]*SQLStore, n)
	for i := range stores {
		mgr := openSQLiteManager(t, path)
		if i == 0 {
			if err := mgr.Migrate(context.Background(), migrations.FS); err != nil {
				t.Fatalf("migrating test db: %v", err)
			}
		}
		stores[i] = NewSQLStore(mgr)
	}
	return stores
}

// testService wires a Service to a real SQLite store.
func testService(t *testing.T) *Service {
	t.Helper()
	codec, err := NewCodec("https://host")
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return NewService(testStore(t), codec, discardLogger())
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// stubExecutor returns a canned result for every statement.
type stubExecutor struct {
	rs  *database.RowSet
	err error
}

func (s *stubExecutor) Execute(context.Context, string, ...any) (*database.RowSet, error) {
	return s.rs, s.err
}

func (s *stubExecutor) HealthCheck(context.Context) error { return s.err }
