package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  driver: "sqlite3"
  path: "/tmp/claimd.db"
  wal_mode: true
  busy_timeout: 5
claim:
  base_url: "https://claim.example.com/"
mqtt:
  enabled: true
  broker:
    host: "broker"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
shutdown:
  grace_period: 15
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}
	if cfg.Database.Path != "/tmp/claimd.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/claimd.db")
	}
	if cfg.Claim.BaseURL != "https://claim.example.com/" {
		t.Errorf("Claim.BaseURL = %q", cfg.Claim.BaseURL)
	}
	if cfg.MQTT.Broker.Host != "broker" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker")
	}
	if cfg.GetGracePeriod() != 15*time.Second {
		t.Errorf("GetGracePeriod() = %v, want 15s", cfg.GetGracePeriod())
	}
	// Untouched sections keep their defaults.
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want default json", cfg.Logging.Format)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.API.Port != 3000 {
		t.Errorf("API.Port = %d, want default 3000", cfg.API.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  driver: "mysql"
api:
  port: 0
`))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// All problems are reported together.
	for _, want := range []string{"database.driver", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_BadEnvironmentValue(t *testing.T) {
	t.Setenv("CLAIMD_PORT", "not-a-number")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric port, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:   "postgres url only",
			mutate: func(c *Config) { c.Database.Host = ""; c.Database.URL = "postgres://db/claimd" },
		},
		{
			name:    "postgres without url or host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Database.Driver = "sqlite3"; c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: true,
		},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.Claim.BaseURL = "/claim" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid QoS when mqtt enabled",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:   "invalid QoS ignored when mqtt disabled",
			mutate: func(c *Config) { c.MQTT.QoS = 3 },
		},
		{
			name:    "redis enabled without url",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.URL = "" },
			wantErr: true,
		},
		{
			name:    "rate limit with zero window",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.API.RateLimit.Window = 0 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without bucket",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" },
			wantErr: true,
		},
		{
			name:    "zero grace period",
			mutate:  func(c *Config) { c.Shutdown.GracePeriod = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{Window: 90},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetRateLimitWindow().Seconds(); got != 90 {
		t.Errorf("GetRateLimitWindow() = %v, want 90", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DATABASE_URL", "postgres://svc@db:5432/claimd")
	t.Setenv("PGPORT", "6543")
	t.Setenv("PGPASSWORD", "pg-secret")
	t.Setenv("DB_SSL_CA", `-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----`)
	t.Setenv("DB_ALLOW_SELF_SIGNED", "true")
	t.Setenv("BASE_URL", "https://claim.example.com")
	t.Setenv("PORT", "8081")
	t.Setenv("CLAIMD_MQTT_HOST", "mqtt.example.com")
	t.Setenv("CLAIMD_INFLUXDB_TOKEN", "secret-token")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.URL != "postgres://svc@db:5432/claimd" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Database.Port = %d, want 6543", cfg.Database.Port)
	}
	if cfg.Database.Password != "pg-secret" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "pg-secret")
	}
	if !strings.Contains(cfg.Database.SSLCA, `\n`) {
		t.Error("Database.SSLCA should be kept escaped; unescaping happens at connect time")
	}
	if !cfg.Database.AllowSelfSigned {
		t.Error("Database.AllowSelfSigned = false, want true")
	}
	if cfg.Claim.BaseURL != "https://claim.example.com" {
		t.Errorf("Claim.BaseURL = %q", cfg.Claim.BaseURL)
	}
	if cfg.API.Port != 8081 {
		t.Errorf("API.Port = %d, want 8081", cfg.API.Port)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	// Unset variables leave values alone.
	if cfg.Database.Name != "claimd" {
		t.Errorf("Database.Name = %q, want default", cfg.Database.Name)
	}
}

func TestApplyEnvOverrides_PrefixWins(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("PGHOST", "bare-host")
	t.Setenv("CLAIMD_PGHOST", "prefixed-host")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}
	if cfg.Database.Host != "prefixed-host" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "prefixed-host")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("defaultConfig Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Claim.BaseURL != "http://localhost:3000/" {
		t.Errorf("defaultConfig Claim.BaseURL = %q", cfg.Claim.BaseURL)
	}
}
