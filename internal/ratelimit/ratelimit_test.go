package ratelimit

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *recordingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

// testClient connects to CLAIMD_TEST_REDIS_URL (default localhost) and
// skips the test when Redis is unreachable.
func testClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("CLAIMD_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	opts.DialTimeout = 500 * time.Millisecond

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // reachability check only
		t.Skipf("Redis not available at %s: %v", url, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAllowWithinLimit(t *testing.T) {
	client := testClient(t)
	logger := &recordingLogger{}
	l := New(client, 3, time.Minute, logger)
	key := "test-" + uuid.NewString()
	ctx := context.Background()

	for i := range 3 {
		res := l.Allow(ctx, key)
		if !res.Allowed {
			t.Fatalf("attempt %d denied, want allowed", i+1)
		}
		if res.Remaining != 2-i {
			t.Errorf("attempt %d Remaining = %d, want %d", i+1, res.Remaining, 2-i)
		}
	}

	res := l.Allow(ctx, key)
	if res.Allowed {
		t.Fatal("4th attempt allowed, want denied")
	}
	if res.RetryAfter < time.Second || res.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (1s, 1m]", res.RetryAfter)
	}

	// Denied attempts are not recorded.
	n, err := client.ZCard(ctx, keyPrefix+key).Result()
	if err != nil {
		t.Fatalf("ZCard() error = %v", err)
	}
	if n != 3 {
		t.Errorf("recorded attempts = %d, want 3", n)
	}

	if logger.warns != 0 {
		t.Errorf("warnings = %d, want 0", logger.warns)
	}
}

func TestAllowWindowSlides(t *testing.T) {
	client := testClient(t)
	l := New(client, 1, time.Minute, &recordingLogger{})
	key := "test-" + uuid.NewString()
	ctx := context.Background()

	start := time.Now()
	l.now = func() time.Time { return start }
	if !l.Allow(ctx, key).Allowed {
		t.Fatal("first attempt denied")
	}
	if l.Allow(ctx, key).Allowed {
		t.Fatal("second attempt inside window allowed")
	}

	l.now = func() time.Time { return start.Add(time.Minute + time.Millisecond) }
	if !l.Allow(ctx, key).Allowed {
		t.Error("attempt after window denied")
	}
}

func TestAllowKeysIndependent(t *testing.T) {
	client := testClient(t)
	l := New(client, 1, time.Minute, &recordingLogger{})
	ctx := context.Background()

	a, b := "test-"+uuid.NewString(), "test-"+uuid.NewString()
	if !l.Allow(ctx, a).Allowed || !l.Allow(ctx, b).Allowed {
		t.Fatal("first attempt per key should be allowed")
	}
}

func TestAllowFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close() //nolint:errcheck // Test cleanup

	logger := &recordingLogger{}
	l := New(client, 1, time.Minute, logger)

	for range 3 {
		if res := l.Allow(context.Background(), "any"); !res.Allowed {
			t.Fatal("Allow() denied while Redis is down, want fail open")
		}
	}
	if logger.warns != 3 {
		t.Errorf("warnings = %d, want 3", logger.warns)
	}

	if err := l.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth() expected error while Redis is down")
	}
}

// failCommands makes the named commands fail once the client is connected.
type failCommands map[string]bool

var errInjected = errors.New("injected redis failure")

func (failCommands) DialHook(next redis.DialHook) redis.DialHook { return next }

func (f failCommands) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if f[cmd.Name()] {
			cmd.SetErr(errInjected)
			return errInjected
		}
		return next(ctx, cmd)
	}
}

func (failCommands) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestAllowDenialSurvivesCleanupFailure(t *testing.T) {
	client := testClient(t)
	logger := &recordingLogger{}
	l := New(client, 1, time.Minute, logger)
	key := "test-" + uuid.NewString()
	ctx := context.Background()

	if res := l.Allow(ctx, key); !res.Allowed {
		t.Fatal("first attempt denied, want allowed")
	}

	client.AddHook(failCommands{"zrem": true, "zrange": true})

	res := l.Allow(ctx, key)
	if res.Allowed {
		t.Fatal("over-limit attempt allowed after cleanup failure, want denied")
	}
	if res.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want the full window", res.RetryAfter)
	}
	if logger.warns != 2 {
		t.Errorf("warnings = %d, want 2", logger.warns)
	}
}
