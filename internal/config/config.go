// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. PROTOFRAME_ENGINE_TIMEOUT.
const EnvPrefix = "PROTOFRAME"

// EngineConfig tunes the frame engine
type EngineConfig struct {
	Timeout      uint32        `mapstructure:"timeout"` // ms
	MaxRetries   int           `mapstructure:"max_retries"`
	MaxPending   int           `mapstructure:"max_pending"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// LogConfig selects log level, encoding and an optional rotating file
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// CaptureConfig records raw traffic to a file when File is set
type CaptureConfig struct {
	File string `mapstructure:"file"`
}

// Config is the top-level configuration
type Config struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	NoSSLVerify bool          `mapstructure:"no_ssl_verify"`
	Region      string        `mapstructure:"region"`
	Engine      EngineConfig  `mapstructure:"engine"`
	Log         LogConfig     `mapstructure:"log"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Capture     CaptureConfig `mapstructure:"capture"`
}

// Load reads configuration from the file at path (if any), environment
// variables and whatever flags were bound to v. A nil v uses a fresh viper
// instance. With an empty path, protoframe.yaml is looked up in the working
// directory and skipped silently when absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("protoframe")
		v.SetConfigType("yaml")
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "")
	v.SetDefault("baud", 115200)
	v.SetDefault("url", "")
	v.SetDefault("username", "")
	v.SetDefault("no_ssl_verify", false)
	v.SetDefault("region", "unspecified")

	v.SetDefault("engine.timeout", protoframe.DefaultTimeout)
	v.SetDefault("engine.max_retries", protoframe.DefaultMaxRetries)
	v.SetDefault("engine.max_pending", protoframe.HistoryCapacity)
	v.SetDefault("engine.tick_interval", "10ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("capture.file", "")
}

// Validate checks values the engine cannot run with
func (c *Config) Validate() error {
	if _, err := protoframe.ParseRegion(c.Region); err != nil {
		return fmt.Errorf("region: %w", err)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive, got %s", c.Engine.TickInterval)
	}
	return nil
}

// EngineOptions converts the configuration into protoframe engine options
func (c *Config) EngineOptions(logger *zap.Logger) (protoframe.Config, error) {
	region, err := protoframe.ParseRegion(c.Region)
	if err != nil {
		return protoframe.Config{}, err
	}
	opts := protoframe.DefaultConfig()
	opts.Region = region
	opts.Logger = logger
	if c.Engine.Timeout > 0 {
		opts.Timeout = c.Engine.Timeout
	}
	if c.Engine.MaxRetries > 0 {
		opts.MaxRetries = c.Engine.MaxRetries
	}
	if c.Engine.MaxPending > 0 {
		opts.MaxPending = c.Engine.MaxPending
	}
	return opts, nil
}
