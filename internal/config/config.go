// Package config loads flowstate configuration from TOML files and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flowstate-dev/flowstate/internal/executor"
	"github.com/flowstate-dev/flowstate/internal/expression"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWSTATE_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config is the top-level configuration.
type Config struct {
	Executor   ExecutorConfig   `toml:"executor"`
	Expression ExpressionConfig `toml:"expression"`
	Storage    StorageConfig    `toml:"storage"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Tracing    TracingConfig    `toml:"tracing"`
}

// ExecutorConfig bounds run execution.
type ExecutorConfig struct {
	MaxTransitions       int `toml:"max_transitions"`
	MaxBranchTransitions int `toml:"max_branch_transitions"`
	MaxHistorySize       int `toml:"max_history_size"`
}

// ExpressionConfig tunes guard expression evaluation.
type ExpressionConfig struct {
	CacheSize     int      `toml:"cache_size"`
	Timeout       Duration `toml:"timeout"`
	SlowThreshold Duration `toml:"slow_threshold"`
}

// StorageConfig selects where runs and events are kept.
type StorageConfig struct {
	Driver   string `toml:"driver"`   // memory, sqlite, postgres, redis or mongo
	DSN      string `toml:"dsn"`      // file path, connection string or URL
	Prefix   string `toml:"prefix"`   // redis key prefix
	Database string `toml:"database"` // mongo database
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn or error
	Format string `toml:"format"` // text or json
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Duration is a time.Duration written as a string ("250ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			MaxTransitions:       executor.DefaultMaxTransitions,
			MaxBranchTransitions: executor.DefaultMaxBranchTransitions,
			MaxHistorySize:       executor.DefaultMaxHistorySize,
		},
		Expression: ExpressionConfig{
			CacheSize:     expression.DefaultCacheSize,
			Timeout:       Duration{expression.DefaultTimeout},
			SlowThreshold: Duration{expression.DefaultSlowThreshold},
		},
		Storage: StorageConfig{
			Driver:   DriverSQLite,
			DSN:      "flowstate.db",
			Database: "flowstate",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Tracing: TracingConfig{
			ServiceName: "flowstate",
		},
	}
}

// LoadFile loads configuration from a TOML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

// Load reads path if it is non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from FLOWSTATE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STORAGE_DRIVER":       &c.Storage.Driver,
		"STORAGE_DSN":          &c.Storage.DSN,
		"STORAGE_PREFIX":       &c.Storage.Prefix,
		"STORAGE_DATABASE":     &c.Storage.Database,
		"LOG_LEVEL":            &c.Log.Level,
		"LOG_FORMAT":           &c.Log.Format,
		"METRICS_ADDR":         &c.Metrics.Addr,
		"TRACING_SERVICE_NAME": &c.Tracing.ServiceName,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_TRANSITIONS":        &c.Executor.MaxTransitions,
		"MAX_BRANCH_TRANSITIONS": &c.Executor.MaxBranchTransitions,
		"MAX_HISTORY_SIZE":       &c.Executor.MaxHistorySize,
		"EXPRESSION_CACHE_SIZE":  &c.Expression.CacheSize,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"METRICS_ENABLED": &c.Metrics.Enabled,
		"TRACING_ENABLED": &c.Tracing.Enabled,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "EXPRESSION_TIMEOUT"); ok {
		if err := c.Expression.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sEXPRESSION_TIMEOUT: %w", EnvPrefix, err)
		}
	}
	return nil
}

// Validate normalises enum-like settings and reports the first invalid one.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis, DriverMongo:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != DriverMemory && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: expected text or json, got %q", c.Log.Format)
	}
	if c.Executor.MaxTransitions < 0 || c.Executor.MaxBranchTransitions < 0 || c.Executor.MaxHistorySize < 0 {
		return fmt.Errorf("executor limits must not be negative")
	}
	if c.Expression.CacheSize < 0 || c.Expression.Timeout.Duration < 0 {
		return fmt.Errorf("expression settings must not be negative")
	}
	return nil
}

// ExecutorOptions returns the executor settings. Actions, observers and
// loggers are left for the caller.
func (c *Config) ExecutorOptions() executor.Config {
	return executor.Config{
		MaxTransitions:       c.Executor.MaxTransitions,
		MaxBranchTransitions: c.Executor.MaxBranchTransitions,
		MaxHistorySize:       c.Executor.MaxHistorySize,
		Expression: expression.Config{
			CacheSize:     c.Expression.CacheSize,
			Timeout:       c.Expression.Timeout.Duration,
			SlowThreshold: c.Expression.SlowThreshold.Duration,
		},
	}
}
