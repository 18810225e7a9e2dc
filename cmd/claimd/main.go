// claimd - device claim token service
//
// This is the main entry point for claimd. It issues one-time claim tokens,
// registers devices against their token hashes, and lets exactly one caller
// claim each device, backed by PostgreSQL or SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/claimd/internal/api"
	"github.com/nerrad567/claimd/internal/claim"
	"github.com/nerrad567/claimd/internal/events"
	"github.com/nerrad567/claimd/internal/infrastructure/config"
	"github.com/nerrad567/claimd/internal/infrastructure/database"
	"github.com/nerrad567/claimd/internal/infrastructure/influxdb"
	"github.com/nerrad567/claimd/internal/infrastructure/logging"
	"github.com/nerrad567/claimd/internal/infrastructure/mqtt"
	"github.com/nerrad567/claimd/internal/ratelimit"
	"github.com/nerrad567/claimd/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// exitStatusForced is the exit status when shutdown overruns the grace period.
	exitStatusForced = 1

	// watchdogSlack lets steps observe the grace deadline before the watchdog fires.
	watchdogSlack = time.Second
)

// forceExit terminates the process; replaced in tests.
var forceExit = os.Exit

func main() {
	// Cancelled on the first SIGINT or SIGTERM. Later signals are ignored
	// by the shutdown path, which is already running.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// closer is one shutdown step, run in reverse start order.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting claimd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := os.Getenv("CLAIMD_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"driver", cfg.Database.Driver,
		"level", cfg.Logging.Level,
	)

	var closers []closer
	defer func() {
		// Startup failed part way: release what was opened.
		if len(closers) > 0 {
			shutdown(context.Background(), log, closers)
		}
	}()

	db, err := database.Open(ctx, databaseConfig(cfg.Database), log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	closers = append(closers, closer{"database", db.Shutdown})
	log.Info("database connected", "driver", db.Driver(), "tls", db.Policy().String())

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	codec, err := claim.NewCodec(cfg.Claim.BaseURL)
	if err != nil {
		return fmt.Errorf("configuring claim URLs: %w", err)
	}
	service := claim.NewService(claim.NewSQLStore(db), codec, log)

	var observers events.Fanout

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		closers = append(closers, closer{"mqtt", func(context.Context) error { return mqttClient.Close() }})

		publisher := events.NewMQTTPublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS(), log)
		closers = append(closers, closer{"event publisher", publisher.Close})
		observers = append(observers, publisher)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		closers = append(closers, closer{"influxdb", func(context.Context) error { return influxClient.Close() }})
		observers = append(observers, events.NewMetricsRecorder(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if len(observers) > 0 {
		service.AddObserver(observers)
	}

	var limiter api.RateLimiter
	if cfg.RateLimitActive() {
		redisLimiter, redisClient, err := newLimiter(ctx, cfg, log)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"redis", func(context.Context) error { return redisClient.Close() }})
		limiter = redisLimiter
	} else {
		log.Info("rate limiting disabled")
	}

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Service: service,
		Pool:    db,
		Limiter: limiter,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	closers = append(closers, closer{"api server", server.Close})

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up", "grace_period", cfg.GetGracePeriod().String())

	// Force the process down if cleanup overruns the grace period.
	watchdog := time.AfterFunc(cfg.GetGracePeriod()+watchdogSlack, func() {
		log.Error("shutdown exceeded grace period, forcing exit")
		forceExit(exitStatusForced)
	})
	defer watchdog.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetGracePeriod())
	defer cancel()

	shutdown(shutdownCtx, log, closers)
	closers = nil

	log.Info("claimd stopped")
	return nil
}

// shutdown runs closers in reverse order. Errors are logged, not returned:
// every step gets its chance to run.
func shutdown(ctx context.Context, log *logging.Logger, closers []closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		log.Info("closing " + c.name)
		if err := c.fn(ctx); err != nil {
			log.Error("error closing "+c.name, "error", err)
		}
	}
}

// loadDotEnv loads .env outside production. Existing variables win and a
// missing file is not an error.
func loadDotEnv() error {
	if os.Getenv("CLAIMD_ENV") == "production" {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// databaseConfig maps the database config section onto the pool settings.
func databaseConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:          c.Driver,
		URL:             c.URL,
		Host:            c.Host,
		Port:            c.Port,
		Name:            c.Name,
		User:            c.User,
		Password:        c.Password,
		SSLCAFile:       c.SSLCAFile,
		SSLCA:           c.SSLCA,
		AllowSelfSigned: c.AllowSelfSigned,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.ConnMaxLifetime) * time.Second,
		Path:            c.Path,
		WALMode:         c.WALMode,
		BusyTimeout:     c.BusyTimeout,
	}
}

// newLimiter connects to Redis for rate limiting. An unreachable Redis is
// logged, not fatal: the limiter fails open.
func newLimiter(ctx context.Context, cfg *config.Config, log *logging.Logger) (*ratelimit.Limiter, *redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	limiter := ratelimit.New(client, cfg.API.RateLimit.Requests, cfg.GetRateLimitWindow(), log)
	if err := limiter.CheckHealth(ctx); err != nil {
		log.Warn("redis unreachable, rate limiting will fail open", "error", err)
	} else {
		log.Info("rate limiting enabled",
			"requests", cfg.API.RateLimit.Requests,
			"window", cfg.GetRateLimitWindow().String(),
		)
	}
	return limiter, client, nil
}
