// Package config loads the modbot YAML configuration file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "MODBOT_CONFIG"
	rulesDirEnv   = "MODBOT_RULES_DIR"
	seenDSNEnv    = "MODBOT_SEEN_DSN"
	logLevelEnv   = "MODBOT_LOG_LEVEL"

	// DefaultPath is read when no path is given and MODBOT_CONFIG is unset.
	DefaultPath = "modbot.yaml"
)

// Config holds the settings of the modbot command.
type Config struct {
	Rules    RulesConfig   `yaml:"rules"`
	Seen     SeenConfig    `yaml:"seen"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Timezone string        `yaml:"timezone"`

	location *time.Location
}

// RulesConfig locates the rule files.
type RulesConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// SeenConfig selects the seen storage: a Postgres table when DSN is set,
// the log file otherwise.
type SeenConfig struct {
	Log   string `yaml:"log"`
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// LogConfig sets the log verbosity: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig sets the listen address of the /metrics endpoint. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Rules: RulesConfig{Dir: "./rules", Pattern: "*.rule"},
		Seen:  SeenConfig{Log: "seen.list", Table: "modbot_seen"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies the
// environment overrides. An empty path falls back to MODBOT_CONFIG and then
// DefaultPath; a missing default file is not an error, a missing explicit one is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if path = os.Getenv(configPathEnv); path != "" {
			explicit = true
		} else {
			path = DefaultPath
		}
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return cfg, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
		cfg = merge(cfg, fileCfg)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("config: cannot read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(rulesDirEnv); v != "" {
		c.Rules.Dir = v
	}
	if v := os.Getenv(seenDSNEnv); v != "" {
		c.Seen.DSN = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) bindTimezone() error {
	if c.Timezone == "" {
		c.location = time.Local
		return nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	c.location = loc
	return nil
}

// Location returns the time zone of the dayhour field.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Level parses the configured log level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	return level, nil
}

func merge(base, override Config) Config {
	if override.Rules.Dir != "" {
		base.Rules.Dir = override.Rules.Dir
	}
	if override.Rules.Pattern != "" {
		base.Rules.Pattern = override.Rules.Pattern
	}
	if override.Seen.Log != "" {
		base.Seen.Log = override.Seen.Log
	}
	if override.Seen.DSN != "" {
		base.Seen.DSN = override.Seen.DSN
	}
	if override.Seen.Table != "" {
		base.Seen.Table = override.Seen.Table
	}
	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}
	return base
}
