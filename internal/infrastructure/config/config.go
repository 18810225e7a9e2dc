package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override (CLAIMD_DATABASE_URL, ...).
// Each override also accepts its bare name (DATABASE_URL, ...).
const envPrefix = "CLAIMD"

// Supported database drivers. Mirrors database.DriverPostgres / DriverSQLite.
const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// Config is the root configuration structure for claimd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Claim    ClaimConfig    `yaml:"claim"`
	API      APIConfig      `yaml:"api"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// DatabaseConfig contains device store connection settings.
//
// For postgres, either URL or the discrete Host/Port/Name/User/Password
// fields are used (URL wins). SSLCAFile, SSLCA and AllowSelfSigned select
// transport security.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	URL             string `yaml:"url"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Name            string `yaml:"name"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	SSLCAFile       string `yaml:"ssl_ca_file"`
	SSLCA           string `yaml:"ssl_ca"`
	AllowSelfSigned bool   `yaml:"allow_self_signed"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds

	// SQLite settings, used when Driver is "sqlite3".
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ClaimConfig contains claim token settings.
type ClaimConfig struct {
	// BaseURL is the public address claim URLs are built under.
	BaseURL string `yaml:"base_url"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// RateLimitConfig bounds unauthenticated validate/claim attempts per client.
// Requires Redis.
type RateLimitConfig struct {
	Enabled  bool `yaml:"enabled"`
	Requests int  `yaml:"requests"`
	Window   int  `yaml:"window"` // seconds
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ShutdownConfig contains graceful shutdown settings.
type ShutdownConfig struct {
	// GracePeriod is how long shutdown may take before the process is
	// force-terminated (seconds).
	GracePeriod int `yaml:"grace_period"`
}

// envBindings maps environment variables onto Config fields.
// envconfig writes through the pointers and leaves fields whose variable
// is unset untouched, so file values survive.
type envBindings struct {
	DatabaseDriver      *string `envconfig:"DATABASE_DRIVER"`
	DatabaseURL         *string `envconfig:"DATABASE_URL"`
	PGHost              *string `envconfig:"PGHOST"`
	PGPort              *int    `envconfig:"PGPORT"`
	PGDatabase          *string `envconfig:"PGDATABASE"`
	PGUser              *string `envconfig:"PGUSER"`
	PGPassword          *string `envconfig:"PGPASSWORD"`
	DBSSLCAFile         *string `envconfig:"DB_SSL_CA_FILE"`
	DBSSLCA             *string `envconfig:"DB_SSL_CA"`
	DBAllowSelfSigned   *bool   `envconfig:"DB_ALLOW_SELF_SIGNED"`
	DatabasePath        *string `envconfig:"DATABASE_PATH"`
	BaseURL             *string `envconfig:"BASE_URL"`
	APIHost             *string `envconfig:"API_HOST"`
	Port                *int    `envconfig:"PORT"`
	RedisURL            *string `envconfig:"REDIS_URL"`
	MQTTHost            *string `envconfig:"MQTT_HOST"`
	MQTTUsername        *string `envconfig:"MQTT_USERNAME"`
	MQTTPassword        *string `envconfig:"MQTT_PASSWORD"`
	InfluxDBToken       *string `envconfig:"INFLUXDB_TOKEN"`
	LogLevel            *string `envconfig:"LOG_LEVEL"`
	ShutdownGracePeriod *int    `envconfig:"SHUTDOWN_GRACE_PERIOD"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables are CLAIMD_<NAME> or the bare <NAME>, for example
// CLAIMD_DATABASE_URL or DATABASE_URL, CLAIMD_PGHOST or PGHOST.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults + environment
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          driverPostgres,
			Host:            "localhost",
			Port:            5432,
			Name:            "claimd",
			User:            "claimd",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 3600,
			Path:            "./data/claimd.db",
			WALMode:         true,
			BusyTimeout:     5,
		},
		Claim: ClaimConfig{
			BaseURL: "http://localhost:3000/",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 30,
				Window:   60,
			},
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "claimd",
			},
			QoS:         1,
			TopicPrefix: "claimd",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "claimd",
			Bucket:        "claimd",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Shutdown: ShutdownConfig{
			GracePeriod: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	env := envBindings{
		DatabaseDriver:      &cfg.Database.Driver,
		DatabaseURL:         &cfg.Database.URL,
		PGHost:              &cfg.Database.Host,
		PGPort:              &cfg.Database.Port,
		PGDatabase:          &cfg.Database.Name,
		PGUser:              &cfg.Database.User,
		PGPassword:          &cfg.Database.Password,
		DBSSLCAFile:         &cfg.Database.SSLCAFile,
		DBSSLCA:             &cfg.Database.SSLCA,
		DBAllowSelfSigned:   &cfg.Database.AllowSelfSigned,
		DatabasePath:        &cfg.Database.Path,
		BaseURL:             &cfg.Claim.BaseURL,
		APIHost:             &cfg.API.Host,
		Port:                &cfg.API.Port,
		RedisURL:            &cfg.Redis.URL,
		MQTTHost:            &cfg.MQTT.Broker.Host,
		MQTTUsername:        &cfg.MQTT.Auth.Username,
		MQTTPassword:        &cfg.MQTT.Auth.Password,
		InfluxDBToken:       &cfg.InfluxDB.Token,
		LogLevel:            &cfg.Logging.Level,
		ShutdownGracePeriod: &cfg.Shutdown.GracePeriod,
	}

	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case driverPostgres:
		if c.Database.URL == "" && c.Database.Host == "" {
			errs = append(errs, "database.url or database.host is required")
		}
	case driverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	default:
		errs = append(errs, "database.driver must be postgres or sqlite3")
	}

	// Claim validation
	if u, err := url.Parse(c.Claim.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "claim.base_url must be an absolute URL")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.RateLimit.Enabled && c.Redis.Enabled {
		if c.API.RateLimit.Requests < 1 {
			errs = append(errs, "api.rate_limit.requests must be positive")
		}
		if c.API.RateLimit.Window < 1 {
			errs = append(errs, "api.rate_limit.window must be positive")
		}
	}

	// Redis validation
	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, "redis.url is required when redis is enabled")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Shutdown validation
	if c.Shutdown.GracePeriod < 1 {
		errs = append(errs, "shutdown.grace_period must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RateLimitActive reports whether validate/claim requests are rate limited.
func (c *Config) RateLimitActive() bool {
	return c.API.RateLimit.Enabled && c.Redis.Enabled
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetGracePeriod returns the shutdown grace period as a Duration.
func (c *Config) GetGracePeriod() time.Duration {
	return time.Duration(c.Shutdown.GracePeriod) * time.Second
}

// GetRateLimitWindow returns the rate limit window as a Duration.
func (c *Config) GetRateLimitWindow() time.Duration {
	return time.Duration(c.API.RateLimit.Window) * time.Second
}
