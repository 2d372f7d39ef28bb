// Package config provides configuration management for snapvault.
// It loads settings from environment variables with the SNAPVAULT_ prefix
// and provides sensible defaults for all configuration options. An optional
// YAML config file can be loaded first; environment variables always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the snapvault durability layer.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Backup  BackupConfig  `yaml:"backup"`
	Sync    SyncConfig    `yaml:"sync"`
	Tuning  TuningConfig  `yaml:"tuning"`
}

// StorageConfig contains durable store configuration.
type StorageConfig struct {
	// Engine is the snapshot store backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// DataPath is the data directory for the SQLite database, crash flags
	// and event files (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BackupConfig contains auto-backup configuration.
type BackupConfig struct {
	// Enabled turns the auto-backup scheduler on (default: true).
	Enabled bool `yaml:"enabled"`

	// Interval is the duration between automated backups (default: 30s).
	Interval time.Duration `yaml:"interval"`

	// MaxSnapshots is the retention bound (default: 10).
	MaxSnapshots int `yaml:"max_snapshots"`

	// LeaseTTL bounds how long a dead writer blocks a new one (default: 2m).
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// SyncConfig contains remote sync configuration.
type SyncConfig struct {
	// Endpoint is the remote sync URL. Empty disables remote sync.
	Endpoint string `yaml:"endpoint"`

	// Transport selects http or ws (default: http).
	Transport string `yaml:"transport"`

	// MaxRetries is the retry cap per sync call (default: 3).
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the first retry delay, doubling per retry (default: 200ms).
	InitialDelay time.Duration `yaml:"initial_delay"`

	// ThrottleWindow caps outbound sync frequency (default: 100ms).
	ThrottleWindow time.Duration `yaml:"throttle_window"`
}

// TuningConfig contains cache and coalescing settings.
type TuningConfig struct {
	// DebounceQuiet is the quiet period before a burst of edits is
	// persisted (default: 300ms).
	DebounceQuiet time.Duration `yaml:"debounce_quiet"`

	// CacheTTL is the default TTL for cached file content (default: 30s).
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// UnmarshalYAML decodes durations from strings like "30s" while leaving
// fields absent from the document at their defaults.
func (b *BackupConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled      *bool   `yaml:"enabled"`
		Interval     *string `yaml:"interval"`
		MaxSnapshots *int    `yaml:"max_snapshots"`
		LeaseTTL     *string `yaml:"lease_ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		b.Enabled = *raw.Enabled
	}
	if raw.MaxSnapshots != nil {
		b.MaxSnapshots = *raw.MaxSnapshots
	}
	if err := parseDuration(&b.Interval, raw.Interval, "backup.interval"); err != nil {
		return err
	}
	return parseDuration(&b.LeaseTTL, raw.LeaseTTL, "backup.lease_ttl")
}

func (s *SyncConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Endpoint       *string `yaml:"endpoint"`
		Transport      *string `yaml:"transport"`
		MaxRetries     *int    `yaml:"max_retries"`
		InitialDelay   *string `yaml:"initial_delay"`
		ThrottleWindow *string `yaml:"throttle_window"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Endpoint != nil {
		s.Endpoint = *raw.Endpoint
	}
	if raw.Transport != nil {
		s.Transport = *raw.Transport
	}
	if raw.MaxRetries != nil {
		s.MaxRetries = *raw.MaxRetries
	}
	if err := parseDuration(&s.InitialDelay, raw.InitialDelay, "sync.initial_delay"); err != nil {
		return err
	}
	return parseDuration(&s.ThrottleWindow, raw.ThrottleWindow, "sync.throttle_window")
}

func (t *TuningConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DebounceQuiet *string `yaml:"debounce_quiet"`
		CacheTTL      *string `yaml:"cache_ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := parseDuration(&t.DebounceQuiet, raw.DebounceQuiet, "tuning.debounce_quiet"); err != nil {
		return err
	}
	return parseDuration(&t.CacheTTL, raw.CacheTTL, "tuning.cache_ttl")
}

func parseDuration(dst *time.Duration, raw *string, field string) error {
	if raw == nil {
		return nil
	}
	parsed, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration for %s: %w", field, err)
	}
	*dst = parsed
	return nil
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the SNAPVAULT_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads a YAML config file, then applies environment
// variable overrides on top of it.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Backup: BackupConfig{
			Enabled:      true,
			Interval:     30 * time.Second,
			MaxSnapshots: 10,
			LeaseTTL:     2 * time.Minute,
		},
		Sync: SyncConfig{
			Transport:      "http",
			MaxRetries:     3,
			InitialDelay:   200 * time.Millisecond,
			ThrottleWindow: 100 * time.Millisecond,
		},
		Tuning: TuningConfig{
			DebounceQuiet: 300 * time.Millisecond,
			CacheTTL:      30 * time.Second,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Storage.Engine, "SNAPVAULT_STORAGE_ENGINE")
	setString(&cfg.Storage.DataPath, "SNAPVAULT_DATA_PATH")
	setString(&cfg.Storage.PostgresDSN, "SNAPVAULT_POSTGRES_DSN")

	setBool(&cfg.Backup.Enabled, "SNAPVAULT_BACKUP_ENABLED")
	setDuration(&cfg.Backup.Interval, "SNAPVAULT_BACKUP_INTERVAL")
	setInt(&cfg.Backup.MaxSnapshots, "SNAPVAULT_BACKUP_MAX_SNAPSHOTS")
	setDuration(&cfg.Backup.LeaseTTL, "SNAPVAULT_BACKUP_LEASE_TTL")

	setString(&cfg.Sync.Endpoint, "SNAPVAULT_SYNC_ENDPOINT")
	setString(&cfg.Sync.Transport, "SNAPVAULT_SYNC_TRANSPORT")
	setInt(&cfg.Sync.MaxRetries, "SNAPVAULT_SYNC_MAX_RETRIES")
	setDuration(&cfg.Sync.InitialDelay, "SNAPVAULT_SYNC_INITIAL_DELAY")
	setDuration(&cfg.Sync.ThrottleWindow, "SNAPVAULT_SYNC_THROTTLE_WINDOW")

	setDuration(&cfg.Tuning.DebounceQuiet, "SNAPVAULT_DEBOUNCE_QUIET")
	setDuration(&cfg.Tuning.CacheTTL, "SNAPVAULT_CACHE_TTL")
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires SNAPVAULT_POSTGRES_DSN")
	}
	switch c.Sync.Transport {
	case "http", "ws":
	default:
		return fmt.Errorf("config: unknown sync transport %q", c.Sync.Transport)
	}
	if c.Backup.MaxSnapshots < 1 {
		return fmt.Errorf("config: max_snapshots must be at least 1")
	}
	if c.Backup.Interval <= 0 {
		return fmt.Errorf("config: backup interval must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
