package sources

import (
	"testing"
	"time"
)

func TestGetStringFromConfig(t *testing.T) {
	config := map[string]interface{}{
		"api_key": "secret",
		"count":   5,
	}

	if got := GetStringFromConfig(config, "api_key", ""); got != "secret" {
		t.Errorf("expected 'secret', got %q", got)
	}
	if got := GetStringFromConfig(config, "missing", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	// Wrong type falls back to default.
	if got := GetStringFromConfig(config, "count", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for non-string, got %q", got)
	}
}

func TestGetIntFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected int
	}{
		{"int", 7, 7},
		{"int64", int64(8), 8},
		{"float64 from yaml", float64(9), 9},
		{"string falls back", "10", 42},
		{"nil falls back", nil, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := map[string]interface{}{"key": tt.value}
			if got := GetIntFromConfig(config, "key", 42); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestGetDurationFromConfig(t *testing.T) {
	config := map[string]interface{}{
		"timeout": "15s",
		"garbage": "not-a-duration",
	}

	if got := GetDurationFromConfig(config, "timeout", time.Minute); got != 15*time.Second {
		t.Errorf("expected 15s, got %v", got)
	}
	if got := GetDurationFromConfig(config, "garbage", time.Minute); got != time.Minute {
		t.Errorf("expected default for garbage, got %v", got)
	}
	if got := GetDurationFromConfig(config, "missing", time.Minute); got != time.Minute {
		t.Errorf("expected default for missing, got %v", got)
	}
}

func TestGetStringMapFromConfig(t *testing.T) {
	config := map[string]interface{}{
		"symbols": map[string]interface{}{
			"bitcoin":  "BTCUSDT",
			"ethereum": "ETHUSDT",
			"skipped":  7,
		},
	}

	result := GetStringMapFromConfig(config, "symbols")
	if len(result) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result))
	}
	if result["bitcoin"] != "BTCUSDT" {
		t.Errorf("expected BTCUSDT, got %q", result["bitcoin"])
	}

	if got := GetStringMapFromConfig(config, "missing"); got != nil {
		t.Errorf("expected nil for missing key, got %v", got)
	}
}

func TestGetLoggerFromConfig_Noop(t *testing.T) {
	logger := GetLoggerFromConfig(map[string]interface{}{})
	if logger == nil {
		t.Fatal("expected noop logger, got nil")
	}
	// Must be safe to use.
	logger.Debug("noop")
}
