// Package config loads the registry daemon configuration.
//
// Values come from defaults, then an optional YAML file, then REGISTRY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/job-registry/pkg/schedule"
)

// Config is the complete daemon configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Health   HealthConfig   `yaml:"health"`
	GC       GCConfig       `yaml:"gc"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects and tunes the shared store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite or postgres
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DispatchConfig configures the dispatcher of this node.
type DispatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// NodeID names this node in logs and metrics. Empty means a random id.
	NodeID string `yaml:"node_id"`
	// HeavyJobTypes are offered after all other job types.
	HeavyJobTypes []string `yaml:"heavy_job_types"`
	// TypeTiers overrides HeavyJobTypes with explicit tiers, lower first.
	TypeTiers map[string]int `yaml:"type_tiers"`
}

// HealthConfig configures the service health monitor.
type HealthConfig struct {
	MaxAttemptsBeforeErrorState int `yaml:"max_attempts_before_error_state"`
}

// GCConfig configures removal of finished jobs.
type GCConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a duration ("1h") or a cron expression ("0 3 * * *").
	Schedule string        `yaml:"schedule"`
	MinAge   time.Duration `yaml:"min_age"`
}

// HTTPConfig configures the operations endpoint.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "registry.db?_journal_mode=WAL&_busy_timeout=5000",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Enabled:       true,
			Interval:      time.Second,
			HeavyJobTypes: []string{"workflow"},
		},
		GC: GCConfig{
			Enabled:  true,
			Schedule: "1h",
			MinAge:   7 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{Listen: ":9464"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REGISTRY_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("REGISTRY_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("REGISTRY_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("REGISTRY_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := getenv("REGISTRY_NODE_ID"); v != "" {
		c.Dispatch.NodeID = v
	}
	if v := getenv("REGISTRY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("REGISTRY_DISPATCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: REGISTRY_DISPATCH_INTERVAL: %w", err)
		}
		c.Dispatch.Interval = d
	}
	if v := getenv("REGISTRY_MAX_ATTEMPTS_BEFORE_ERROR_STATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REGISTRY_MAX_ATTEMPTS_BEFORE_ERROR_STATE: %w", err)
		}
		c.Health.MaxAttemptsBeforeErrorState = n
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required for postgres"))
	}
	if c.Dispatch.Enabled && c.Dispatch.Interval <= 0 {
		errs = append(errs, errors.New("dispatch.interval must be positive"))
	}
	if c.Health.MaxAttemptsBeforeErrorState < 0 {
		errs = append(errs, errors.New("health.max_attempts_before_error_state must not be negative"))
	}
	if c.GC.Enabled {
		if _, err := schedule.Parse(c.GC.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("gc.schedule: %w", err))
		}
		if c.GC.MinAge < 0 {
			errs = append(errs, errors.New("gc.min_age must not be negative"))
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Tiers returns the job-type tiers for the dispatcher ordering.
func (d DispatchConfig) Tiers() map[string]int {
	if len(d.TypeTiers) > 0 {
		return d.TypeTiers
	}
	tiers := make(map[string]int, len(d.HeavyJobTypes))
	for _, jt := range d.HeavyJobTypes {
		tiers[jt] = 1
	}
	return tiers
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
