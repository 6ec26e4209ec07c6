package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
server:
  http:
    addr: ":8080"
engine:
  ttl:
    spot_price: 5m
    market_data: 10m
  call_timeout: 10s
  batch_concurrency: 8
  breaker:
    failure_threshold: 3
    recovery_timeout: 30s
sources:
  - type: cex
    name: coingecko
    enabled: true
    priority: 1
    rate_limit: 100
    burst: 20
    config:
      api_key: ${TEST_CG_KEY}
  - type: oracle
    name: chainlink
    enabled: true
    priority: 2
    breaker:
      failure_threshold: 10
      recovery_timeout: 2m
    config:
      chain: ethereum
      rpc_url: https://rpc.example
chains:
  - name: ethereum
    chain_id: 1
    rpc_url: https://rpc.example
dexes:
  - id: uniswap_v2
    name: Uniswap V2
    website: https://uniswap.org
    chains: [ethereum]
    swap_fee: "0.3%"
logging:
  level: debug
  format: text
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_CG_KEY", "secret123")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.TTL["spot_price"].ToDuration() != 5*time.Minute {
		t.Errorf("expected spot_price ttl 5m, got %v", cfg.Engine.TTL["spot_price"])
	}
	if cfg.Engine.BatchConcurrency != 8 {
		t.Errorf("expected batch concurrency 8, got %d", cfg.Engine.BatchConcurrency)
	}
	if cfg.Engine.Breaker.FailureThreshold != 3 {
		t.Errorf("expected failure threshold 3, got %d", cfg.Engine.Breaker.FailureThreshold)
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}

	// Environment variables must be expanded inside source configs.
	if got, _ := cfg.Sources[0].Config["api_key"].(string); got != "secret123" {
		t.Errorf("expected expanded api key, got %q", got)
	}

	// Per-source breaker override.
	if cfg.Sources[1].Breaker == nil || cfg.Sources[1].Breaker.FailureThreshold != 10 {
		t.Error("expected per-source breaker override")
	}
	if cfg.Sources[0].Breaker != nil {
		t.Error("expected no breaker override for first source")
	}

	if len(cfg.Chains) != 1 || cfg.Chains[0].ChainID != 1 {
		t.Errorf("expected ethereum chain entry, got %+v", cfg.Chains)
	}
	if len(cfg.Dexes) != 1 || cfg.Dexes[0].ID != "uniswap_v2" || cfg.Dexes[0].SwapFee != "0.3%" {
		t.Errorf("expected uniswap_v2 dex entry, got %+v", cfg.Dexes)
	}
}

func TestEnabledSources(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{
			{Type: "cex", Name: "coingecko", Enabled: true},
			{Type: "cex", Name: "binance", Enabled: false},
			{Type: "oracle", Name: "chainlink", Enabled: true},
		},
	}

	enabled := cfg.EnabledSources()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled sources, got %d", len(enabled))
	}
	if enabled[0].Name != "coingecko" || enabled[1].Name != "chainlink" {
		t.Errorf("unexpected enabled sources: %+v", enabled)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sources:
  - type: cex
    name: coingecko
    enabled: true
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTP.Addr != ":8080" {
		t.Errorf("expected default http addr, got %q", cfg.Server.HTTP.Addr)
	}
	if cfg.Engine.CallTimeout.ToDuration() != 10*time.Second {
		t.Errorf("expected default call timeout 10s, got %v", cfg.Engine.CallTimeout)
	}
	if cfg.Engine.BatchConcurrency != 4 {
		t.Errorf("expected default batch concurrency 4, got %d", cfg.Engine.BatchConcurrency)
	}
	if cfg.Engine.Breaker.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", cfg.Engine.Breaker.FailureThreshold)
	}
	if cfg.Engine.Breaker.RecoveryTimeout.ToDuration() != 60*time.Second {
		t.Errorf("expected default recovery timeout 60s, got %v", cfg.Engine.Breaker.RecoveryTimeout)
	}
	if cfg.Sources[0].RateLimit != 100 || cfg.Sources[0].Burst != 20 {
		t.Errorf("expected default rate limit 100/20, got %d/%d", cfg.Sources[0].RateLimit, cfg.Sources[0].Burst)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging, got %+v", cfg.Logging)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Sources: []SourceConfig{
				{Type: "cex", Name: "coingecko", Enabled: true},
			},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "no sources",
			mutate:  func(c *Config) { c.Sources = nil },
			wantErr: ErrNoSourcesConfigured,
		},
		{
			name:    "no enabled sources",
			mutate:  func(c *Config) { c.Sources[0].Enabled = false },
			wantErr: ErrNoSourcesEnabled,
		},
		{
			name:    "bad source type",
			mutate:  func(c *Config) { c.Sources[0].Type = "fiat" },
			wantErr: ErrInvalidSourceType,
		},
		{
			name:    "missing source name",
			mutate:  func(c *Config) { c.Sources[0].Name = "" },
			wantErr: ErrSourceNameRequired,
		},
		{
			name:    "negative priority",
			mutate:  func(c *Config) { c.Sources[0].Priority = -1 },
			wantErr: ErrNegativePriority,
		},
		{
			name:    "unknown ttl class",
			mutate:  func(c *Config) { c.Engine.TTL = map[string]Duration{"bogus": Duration(time.Minute)} },
			wantErr: ErrInvalidDataClass,
		},
		{
			name: "negative per-source breaker",
			mutate: func(c *Config) {
				c.Sources[0].Breaker = &BreakerConfig{FailureThreshold: -1}
			},
			wantErr: ErrInvalidBreaker,
		},
		{
			name: "chain without rpc url",
			mutate: func(c *Config) {
				c.Chains = []ChainConfig{{Name: "ethereum"}}
			},
			wantErr: ErrChainRPCURLRequired,
		},
		{
			name: "dex without id",
			mutate: func(c *Config) {
				c.Dexes = []DexConfig{{Name: "Uniswap V2"}}
			},
			wantErr: ErrDexIDRequired,
		},
		{
			name: "dex without name",
			mutate: func(c *Config) {
				c.Dexes = []DexConfig{{ID: "uniswap_v2"}}
			},
			wantErr: ErrDexNameRequired,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name: "tls enabled without cert",
			mutate: func(c *Config) {
				c.Server.HTTP.TLS.Enabled = true
			},
			wantErr: ErrTLSConfigIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
