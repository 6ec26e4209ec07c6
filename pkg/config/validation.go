package config

import (
	"fmt"
	"os"
	"strings"
)

var validDataClasses = map[string]bool{
	"spot_price":  true,
	"market_data": true,
	"metadata":    true,
	"history":     true,
}

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateEngineConfig(&cfg.Engine); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return ErrNoSourcesConfigured
	}
	enabled := 0
	for i, source := range cfg.Sources {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
		if source.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoSourcesEnabled
	}

	for i, chain := range cfg.Chains {
		if err := validateChainConfig(&chain); err != nil {
			return fmt.Errorf("chain %d (%s): %w", i, chain.Name, err)
		}
	}

	for i, dex := range cfg.Dexes {
		if err := validateDexConfig(&dex); err != nil {
			return fmt.Errorf("dex %d (%s): %w", i, dex.ID, err)
		}
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}

	return nil
}

func validateEngineConfig(cfg *EngineConfig) error {
	for class := range cfg.TTL {
		if !validDataClasses[strings.ToLower(class)] {
			return fmt.Errorf("%w: %s", ErrInvalidDataClass, class)
		}
	}

	if err := validateBreakerConfig(&cfg.Breaker); err != nil {
		return err
	}

	return nil
}

func validateBreakerConfig(cfg *BreakerConfig) error {
	if cfg.FailureThreshold < 0 {
		return fmt.Errorf("%w: failure_threshold must be >= 0", ErrInvalidBreaker)
	}
	if cfg.RecoveryTimeout.ToDuration() < 0 {
		return fmt.Errorf("%w: recovery_timeout must be >= 0", ErrInvalidBreaker)
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	validTypes := []string{"cex", "evm", "oracle"}
	typeValid := false
	for _, t := range validTypes {
		if strings.ToLower(cfg.Type) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidSourceType, cfg.Type, strings.Join(validTypes, ", "))
	}

	if cfg.Name == "" {
		return ErrSourceNameRequired
	}

	if cfg.Priority < 0 {
		return ErrNegativePriority
	}

	if cfg.Breaker != nil {
		if err := validateBreakerConfig(cfg.Breaker); err != nil {
			return err
		}
	}

	return nil
}

func validateChainConfig(cfg *ChainConfig) error {
	if cfg.Name == "" {
		return ErrChainNameRequired
	}
	if cfg.RPCURL == "" {
		return ErrChainRPCURLRequired
	}
	return nil
}

func validateDexConfig(cfg *DexConfig) error {
	if cfg.ID == "" {
		return ErrDexIDRequired
	}
	if cfg.Name == "" {
		return ErrDexNameRequired
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
