package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Engine  EngineConfig   `yaml:"engine"`
	Sources []SourceConfig `yaml:"sources"`
	Chains  []ChainConfig  `yaml:"chains"`
	Dexes   []DexConfig    `yaml:"dexes"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP/WebSocket surface
type ServerConfig struct {
	HTTP      HTTPConfig `yaml:"http"`
	WebSocket WSConfig   `yaml:"websocket"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket streamer
type WSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// EngineConfig configures the resolution engine
type EngineConfig struct {
	// TTL per data class (spot_price, market_data, metadata, history).
	// Unset classes fall back to built-in defaults.
	TTL map[string]Duration `yaml:"ttl"`

	CallTimeout      Duration      `yaml:"call_timeout"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	Breaker          BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type     string                 `yaml:"type"`
	Name     string                 `yaml:"name"`
	Enabled  bool                   `yaml:"enabled"`
	Priority int                    `yaml:"priority"`

	// RateLimit is requests per minute against the upstream; Burst is
	// the bucket capacity.
	RateLimit int `yaml:"rate_limit"`
	Burst     int `yaml:"burst"`

	// Breaker overrides the global breaker settings for this source.
	Breaker *BreakerConfig `yaml:"breaker"`

	Config map[string]interface{} `yaml:"config"`
}

// ChainConfig declares an EVM chain known to the service
type ChainConfig struct {
	Name    string `yaml:"name"`
	ChainID uint64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
}

// DexConfig declares a DEX platform for the catalog endpoint
type DexConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Website string   `yaml:"website"`
	Chains  []string `yaml:"chains"`
	SwapFee string   `yaml:"swap_fee"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
