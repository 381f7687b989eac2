// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "MESAD_"

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults, then the strict YAML file,
// then environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		if err := l.loadFile(&cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Sessions: SessionsConfig{
			Duration:      60 * time.Minute,
			Extension:     30 * time.Minute,
			SweepInterval: 30 * time.Second,
			Retention:     24 * time.Hour,
			Timezone:      "UTC",
		},
		Tokens: TokensConfig{
			Backend: "memory",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			GlobalRate:  200,
			GlobalBurst: 400,
			PerIPRate:   10,
			PerIPBurst:  20,
		},
		Log: LogConfig{
			Level:  "info",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			SampleRatio: 1.0,
			ServiceName: "mesad",
		},
		Export: ExportConfig{
			Dir: "exports",
		},
	}
}

// loadFile merges the YAML file at the configured path into cfg. Parsing is
// strict: unknown keys, multiple documents and trailing content are errors.
func (l *Loader) loadFile(cfg *AppConfig) error {
	path := filepath.Clean(l.configPath)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return nil
}
