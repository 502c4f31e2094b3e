// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"strings"
	"time"

	"github.com/z5labs/greenhttp/pkg/otelconfig"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the root service configuration.
type Config struct {
	Port            uint          `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Log     LogConfig         `mapstructure:"log"`
	Tracing otelconfig.Config `mapstructure:"tracing"`
	Client  ClientConfig      `mapstructure:"client"`
	Proxy   ProxyConfig       `mapstructure:"proxy"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format: json or text
	Format string `mapstructure:"format"`

	// File, when set, receives the logs instead of stdout and is rotated.
	File     string         `mapstructure:"file"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// ClientConfig configures the outbound http.Client.
type ClientConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`

	Retry struct {
		Enabled    bool          `mapstructure:"enabled"`
		MaxRetries int           `mapstructure:"max_retries"`
		MinWait    time.Duration `mapstructure:"min_wait"`
		MaxWait    time.Duration `mapstructure:"max_wait"`
	} `mapstructure:"retry"`

	Circuit struct {
		Enabled          bool          `mapstructure:"enabled"`
		TripAfter        uint32        `mapstructure:"trip_after"`
		OpenStateTimeout time.Duration `mapstructure:"open_state_timeout"`
	} `mapstructure:"circuit"`
}

// ProxyConfig configures the proxy endpoints.
type ProxyConfig struct {
	// Timeout bounds each call made by /proxy/timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.Port = 8080
	cfg.ShutdownTimeout = 30 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.Rotation = RotationConfig{
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
	cfg.Tracing.ServiceName = "greenhttp"
	cfg.Tracing.Exporter = otelconfig.ExporterNone
	cfg.Client.Retry.MaxRetries = 2
	cfg.Client.Retry.MinWait = 100 * time.Millisecond
	cfg.Client.Retry.MaxWait = 5 * time.Second
	cfg.Client.Circuit.TripAfter = 5
	cfg.Client.Circuit.OpenStateTimeout = 60 * time.Second
	cfg.Proxy.Timeout = time.Second
	return cfg
}

// LoadConfig reads configuration from the YAML file at path, if non-empty,
// with environment overrides. Environment variables use the prefix
// GREENHTTP and `.` is replaced with `_`, e.g. GREENHTTP_LOG_LEVEL=debug.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GREENHTTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("port", cfg.Port)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.exporter", string(cfg.Tracing.Exporter))
	v.SetDefault("tracing.otlp.target", cfg.Tracing.OTLP.Target)
	v.SetDefault("tracing.gcp.project_id", cfg.Tracing.GoogleCloud.ProjectID)
	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("client.retry.enabled", cfg.Client.Retry.Enabled)
	v.SetDefault("client.retry.max_retries", cfg.Client.Retry.MaxRetries)
	v.SetDefault("client.retry.min_wait", cfg.Client.Retry.MinWait)
	v.SetDefault("client.retry.max_wait", cfg.Client.Retry.MaxWait)
	v.SetDefault("client.circuit.enabled", cfg.Client.Circuit.Enabled)
	v.SetDefault("client.circuit.trip_after", cfg.Client.Circuit.TripAfter)
	v.SetDefault("client.circuit.open_state_timeout", cfg.Client.Circuit.OpenStateTimeout)
	v.SetDefault("proxy.timeout", cfg.Proxy.Timeout)

	if path != "" {
		v.SetConfigFile(path)
		err := v.ReadInConfig()
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file: %s", path)
		}
	}

	err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	return cfg, nil
}
