// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with the precedence
// ENV > file > defaults. File parsing is strict: unknown YAML keys
// are rejected so typos fail at startup instead of silently using
// defaults.
package config

import (
	"fmt"
	"time"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Sessions  SessionsConfig  `yaml:"sessions" envPrefix:"SESSIONS_"`
	Tokens    TokensConfig    `yaml:"tokens" envPrefix:"TOKENS_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	RateLimit RateLimitConfig `yaml:"ratelimit" envPrefix:"RATELIMIT_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
	Export    ExportConfig    `yaml:"export" envPrefix:"EXPORT_"`

	// Version is stamped from the binary, never from file or env.
	Version string `yaml:"-" env:"-"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen" env:"LISTEN"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AdminAPIKey     string        `yaml:"admin_api_key" env:"ADMIN_API_KEY"`
}

type SessionsConfig struct {
	Duration      time.Duration `yaml:"duration" env:"DURATION"`
	Extension     time.Duration `yaml:"extension" env:"EXTENSION"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	Retention     time.Duration `yaml:"retention" env:"RETENTION"`
	Timezone      string        `yaml:"timezone" env:"TIMEZONE"`
}

type TokensConfig struct {
	// Backend selects the token store: "memory" or "sqlite".
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path is the SQLite database file, required for the sqlite backend.
	Path string        `yaml:"path" env:"PATH"`
	TTL  time.Duration `yaml:"ttl" env:"TTL"`
}

type RedisConfig struct {
	// Enabled switches the token validation cache from in-process to Redis.
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type RateLimitConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	GlobalRate  float64 `yaml:"global_rate" env:"GLOBAL_RATE"`
	GlobalBurst int     `yaml:"global_burst" env:"GLOBAL_BURST"`
	PerIPRate   float64 `yaml:"per_ip_rate" env:"PER_IP_RATE"`
	PerIPBurst  int     `yaml:"per_ip_burst" env:"PER_IP_BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Output string `yaml:"output" env:"OUTPUT"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint     string  `yaml:"endpoint" env:"EXPORTER_OTLP_ENDPOINT"`
	Protocol     string  `yaml:"protocol" env:"EXPORTER_OTLP_PROTOCOL"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"TRACES_SAMPLER_ARG"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	InsecureGRPC bool    `yaml:"insecure" env:"EXPORTER_OTLP_INSECURE"`
}

type ExportConfig struct {
	// Dir is where event history exports are written atomically.
	Dir string `yaml:"dir" env:"DIR"`
}

// Validate checks invariants that cannot be expressed by types alone.
func Validate(cfg AppConfig) error {
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if cfg.Sessions.Duration <= 0 {
		return fmt.Errorf("sessions.duration must be positive, got %s", cfg.Sessions.Duration)
	}
	if cfg.Sessions.Extension <= 0 {
		return fmt.Errorf("sessions.extension must be positive, got %s", cfg.Sessions.Extension)
	}
	if cfg.Sessions.SweepInterval < 0 {
		return fmt.Errorf("sessions.sweep_interval must not be negative, got %s", cfg.Sessions.SweepInterval)
	}
	if cfg.Sessions.Retention < 0 {
		return fmt.Errorf("sessions.retention must not be negative, got %s", cfg.Sessions.Retention)
	}
	if _, err := time.LoadLocation(cfg.Sessions.Timezone); err != nil {
		return fmt.Errorf("sessions.timezone: %w", err)
	}

	switch cfg.Tokens.Backend {
	case "", "memory":
	case "sqlite":
		if cfg.Tokens.Path == "" {
			return fmt.Errorf("tokens.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("tokens.backend must be memory or sqlite, got %q", cfg.Tokens.Backend)
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.GlobalRate <= 0 || cfg.RateLimit.GlobalBurst <= 0 {
			return fmt.Errorf("ratelimit global rate and burst must be positive")
		}
		if cfg.RateLimit.PerIPRate <= 0 || cfg.RateLimit.PerIPBurst <= 0 {
			return fmt.Errorf("ratelimit per-IP rate and burst must be positive")
		}
	}

	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace|debug|info|warn|error, got %q", cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", cfg.Telemetry.Protocol)
		}
		if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("telemetry.sample_ratio must be within [0,1], got %v", cfg.Telemetry.SampleRatio)
		}
	}

	return nil
}

// Location resolves the configured statistics timezone. Validate has
// already checked it loads; errors here mean Validate was skipped.
func (c SessionsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
