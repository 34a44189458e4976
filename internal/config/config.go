// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/seoscope/seoscope/internal/audit"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// WorkerConfig governs the worker pool and the stale-claim sweeper.
type WorkerConfig struct {
	Count                int `mapstructure:"count"`
	PollIntervalMs       int `mapstructure:"poll_interval_ms"`
	StaleAfterSeconds    int `mapstructure:"stale_after_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	MaxRequeues          int `mapstructure:"max_requeues"`
}

// FetchConfig configures the plain HTTP fetcher and the per-job fetch budget.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DefaultMode    string `mapstructure:"default_mode"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// CreditsConfig sets the cost of queued work.
type CreditsConfig struct {
	JobCost int `mapstructure:"job_cost"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory
// stores (development mode).
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	MaxConns      int    `mapstructure:"max_conns"`
	MinConns      int    `mapstructure:"min_conns"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// RedisConfig configures the API rate limiter. An empty URL disables it.
type RedisConfig struct {
	URL               string `mapstructure:"url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// StorageConfig selects the snapshot archive backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion-event publishing. An empty
// project id selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEOSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.poll_interval_ms", 3000)
	v.SetDefault("worker.stale_after_seconds", 300)
	v.SetDefault("worker.sweep_interval_seconds", 60)
	v.SetDefault("worker.max_requeues", 1)
	v.SetDefault("fetch.user_agent", "seoscope-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.default_mode", "simple")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("credits.job_cost", 1)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.migrations_dir", "migrations")
	v.SetDefault("redis.requests_per_minute", 60)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be > 0")
	}
	if c.Worker.PollIntervalMs <= 0 {
		return fmt.Errorf("worker.poll_interval_ms must be > 0")
	}
	if c.Worker.StaleAfterSeconds <= 0 {
		return fmt.Errorf("worker.stale_after_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if !audit.ValidFetchMode(audit.FetchMode(c.Fetch.DefaultMode)) {
		return fmt.Errorf("fetch.default_mode must be simple or rendered")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Credits.JobCost <= 0 {
		return fmt.Errorf("credits.job_cost must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.provider must be memory, local or gcs")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
	}
	return nil
}

// PollInterval returns the worker poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalMs) * time.Millisecond
}

// FetchTimeout returns the per-job fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// StaleAfter returns the claim age past which a job counts as stranded.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Worker.StaleAfterSeconds) * time.Second
}

// SweepInterval returns the cadence of the stale-claim sweeper.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Worker.SweepIntervalSeconds) * time.Second
}
