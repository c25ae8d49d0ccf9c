// Package config loads the scheduler's ambient configuration: pacing
// limits, watchdog thresholds, and logging knobs. None of this is part of
// the scheduler core itself — environment variables and CLI flags are not
// part of vosaka.Scheduler; the surrounding program configures the
// runtime by calling its setters — this package is consumed only by
// cmd/vosakadev, which then calls those setters.
//
// Layering is a real loader built on github.com/spf13/viper: defaults,
// then an optional TOML file, then VOSAKA_*-prefixed environment
// variables, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config is the scheduler's ambient configuration.
type Config struct {
	MaximumPeriod        int    `mapstructure:"maximum_period" toml:"maximum_period"`
	EnableMaximumPeriod  bool   `mapstructure:"enable_maximum_period" toml:"enable_maximum_period"`
	MaxConcurrentTasks   int    `mapstructure:"max_concurrent_tasks" toml:"max_concurrent_tasks"`
	EnableLogging        bool   `mapstructure:"enable_logging" toml:"enable_logging"`
	WatchdogSoftLimitMB  uint64 `mapstructure:"watchdog_soft_limit_mb" toml:"watchdog_soft_limit_mb"`
	WatchdogCheckEvery   int    `mapstructure:"watchdog_check_every" toml:"watchdog_check_every"`
	WatchdogGCEvery      int    `mapstructure:"watchdog_gc_every" toml:"watchdog_gc_every"`
	LogLevel             string `mapstructure:"log_level" toml:"log_level"`
	MetricsEnabled       bool   `mapstructure:"metrics_enabled" toml:"metrics_enabled"`
}

// Defaults returns the scheduler's out-of-the-box configuration: a large,
// effectively non-binding maxConcurrentTasks (100), maximumPeriod
// disabled, and the watchdog off until a caller opts in with a soft
// limit.
func Defaults() Config {
	return Config{
		MaximumPeriod:       0,
		EnableMaximumPeriod: false,
		MaxConcurrentTasks:  100,
		EnableLogging:       true,
		WatchdogSoftLimitMB: 0,
		WatchdogCheckEvery:  16,
		WatchdogGCEvery:     64,
		LogLevel:            "info",
		MetricsEnabled:      false,
	}
}

// Load builds a Config layering, in increasing precedence: Defaults(), an
// optional TOML file at path (ignored if path is empty or the file does
// not exist), and VOSAKA_*-prefixed environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VOSAKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("maximum_period", def.MaximumPeriod)
	v.SetDefault("enable_maximum_period", def.EnableMaximumPeriod)
	v.SetDefault("max_concurrent_tasks", def.MaxConcurrentTasks)
	v.SetDefault("enable_logging", def.EnableLogging)
	v.SetDefault("watchdog_soft_limit_mb", def.WatchdogSoftLimitMB)
	v.SetDefault("watchdog_check_every", def.WatchdogCheckEvery)
	v.SetDefault("watchdog_gc_every", def.WatchdogGCEvery)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// MarshalTOML renders cfg as a starter TOML document, using
// github.com/pelletier/go-toml/v2 directly (rather than through viper).
func MarshalTOML(cfg Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal toml: %w", err)
	}
	return out, nil
}
