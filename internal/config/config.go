// Package config loads the daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level configuration for diskmand. Values come from an
// optional JSON file and can be overridden through the environment.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel" env:"DISKMAND_LOG_LEVEL"`

	// MountinfoPath overrides where the mount table is read from. Empty
	// selects the kernel default. Mostly useful in tests.
	MountinfoPath string `json:"mountinfoPath" env:"DISKMAND_MOUNTINFO_PATH"`

	// HelperTimeoutSecs bounds how long a spawned helper command may run
	// before its job is cancelled. Zero disables the bound.
	HelperTimeoutSecs int `json:"helperTimeoutSecs" env:"DISKMAND_HELPER_TIMEOUT_SECS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{LogLevel: "info"}
}

// Load reads the JSON config file at path (skipped when path is empty) and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config environment: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level parses LogLevel into a slog level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// HelperTimeout returns the configured helper timeout as a duration.
func (c *Config) HelperTimeout() time.Duration {
	return time.Duration(c.HelperTimeoutSecs) * time.Second
}
