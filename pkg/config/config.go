// Package config provides configuration loading and validation for token-prices.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in YAML
	expanded := os.ExpandEnv(string(data))

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}

	// Engine defaults
	if cfg.Engine.CallTimeout.ToDuration() == 0 {
		cfg.Engine.CallTimeout = Duration(10 * time.Second)
	}
	if cfg.Engine.BatchConcurrency == 0 {
		cfg.Engine.BatchConcurrency = 4
	}
	if cfg.Engine.Breaker.FailureThreshold == 0 {
		cfg.Engine.Breaker.FailureThreshold = 5
	}
	if cfg.Engine.Breaker.RecoveryTimeout.ToDuration() == 0 {
		cfg.Engine.Breaker.RecoveryTimeout = Duration(60 * time.Second)
	}

	// Source defaults
	for i := range cfg.Sources {
		if cfg.Sources[i].RateLimit == 0 {
			cfg.Sources[i].RateLimit = 100
		}
		if cfg.Sources[i].Burst == 0 {
			cfg.Sources[i].Burst = 20
		}
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// EnabledSources returns the enabled source configs.
func (c *Config) EnabledSources() []SourceConfig {
	enabled := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}
