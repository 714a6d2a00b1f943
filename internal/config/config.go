// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/alertd/internal/model"
)

// Default configuration values.
const (
	DefaultMaxConcurrent   = 5
	DefaultPoolMaxSize     = 50
	DefaultCleanupSchedule = "@every 1m"
	DefaultRateBurst       = 10
)

// Config is the configuration for alertd.
// Loaded from ~/.config/alertd/alertd.toml
type Config struct {
	Admission AdmissionConfig `toml:"admission"`
	Pool      PoolConfig      `toml:"pool"`
	Timeouts  TimeoutConfig   `toml:"timeouts"`
	Animation AnimationConfig `toml:"animation"`
	Rate      RateConfig      `toml:"rate"`
	Internal  InternalConfig  `toml:"internal"`
}

// AdmissionConfig controls how many notifications may be live at once.
type AdmissionConfig struct {
	MaxConcurrent       int            `toml:"max_concurrent"`       // Maximum simultaneously live notifications
	PreemptionThreshold model.Priority `toml:"preemption_threshold"` // Lowest priority allowed to preempt at capacity
}

// PoolConfig contains display instance pool settings.
type PoolConfig struct {
	MaxSize         int    `toml:"max_size"`         // Idle instances kept per kind
	CleanupSchedule string `toml:"cleanup_schedule"` // cron spec, e.g. "@every 1m"; empty disables
}

// TimeoutConfig contains the default visible lifetime per priority.
// Durations can be specified as "5s", "10s", "1m", etc. or as integer milliseconds.
// A value of "0" or 0 means never expire.
type TimeoutConfig struct {
	Low    Duration `toml:"low"`
	Normal Duration `toml:"normal"`
	High   Duration `toml:"high"`
	Urgent Duration `toml:"urgent"`
}

// AnimationConfig contains the opaque entrance and exit durations handed to the animator.
type AnimationConfig struct {
	Entrance Duration `toml:"entrance"`
	Exit     Duration `toml:"exit"`
}

// RateConfig limits how fast requests are accepted. PerSecond of 0 disables limiting.
type RateConfig struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// InternalConfig controls the daemon's own notices (config reloaded, errors).
type InternalConfig struct {
	Enabled     bool     `toml:"enabled"`
	MinInterval Duration `toml:"min_interval"` // Don't repeat the same notice within this window
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Admission: AdmissionConfig{
			MaxConcurrent:       DefaultMaxConcurrent,
			PreemptionThreshold: model.PriorityHigh,
		},
		Pool: PoolConfig{
			MaxSize:         DefaultPoolMaxSize,
			CleanupSchedule: DefaultCleanupSchedule,
		},
		Timeouts: TimeoutConfig{
			Low:    Duration(5 * time.Second),
			Normal: Duration(10 * time.Second),
			High:   Duration(15 * time.Second),
			Urgent: Duration(0), // Never expires
		},
		Animation: AnimationConfig{
			Entrance: Duration(200 * time.Millisecond),
			Exit:     Duration(150 * time.Millisecond),
		},
		Rate: RateConfig{
			PerSecond: 0,
			Burst:     DefaultRateBurst,
		},
		Internal: InternalConfig{
			Enabled:     true,
			MinInterval: Duration(5 * time.Second),
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "alertd", "alertd.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns the default config if the file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Marshal returns the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Admission.MaxConcurrent < 1 || c.Admission.MaxConcurrent > 100 {
		return fmt.Errorf("max_concurrent must be between 1 and 100, got %d", c.Admission.MaxConcurrent)
	}
	if !c.Admission.PreemptionThreshold.Valid() {
		return fmt.Errorf("preemption_threshold: %w", model.ErrInvalidPriority)
	}

	if c.Pool.MaxSize < 0 {
		return fmt.Errorf("pool max_size must not be negative, got %d", c.Pool.MaxSize)
	}
	if c.Pool.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Pool.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid cleanup_schedule %q: %w", c.Pool.CleanupSchedule, err)
		}
	}

	for name, d := range map[string]Duration{
		"timeouts.low":       c.Timeouts.Low,
		"timeouts.normal":    c.Timeouts.Normal,
		"timeouts.high":      c.Timeouts.High,
		"timeouts.urgent":    c.Timeouts.Urgent,
		"animation.entrance": c.Animation.Entrance,
		"animation.exit":     c.Animation.Exit,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d.Duration())
		}
	}

	if c.Rate.PerSecond < 0 {
		return fmt.Errorf("rate per_second must not be negative, got %v", c.Rate.PerSecond)
	}
	if c.Rate.PerSecond > 0 && c.Rate.Burst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when limiting is enabled, got %d", c.Rate.Burst)
	}

	return nil
}

// TimeoutFor returns the default visible lifetime for the given priority.
func (c *Config) TimeoutFor(p model.Priority) time.Duration {
	switch p {
	case model.PriorityLow:
		return c.Timeouts.Low.Duration()
	case model.PriorityHigh:
		return c.Timeouts.High.Duration()
	case model.PriorityUrgent:
		return c.Timeouts.Urgent.Duration()
	default: // Normal or unknown
		return c.Timeouts.Normal.Duration()
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
