package sources

import (
	"errors"
	"testing"
)

func TestNormalizeChain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"eth", "ethereum"},
		{"ETH", "ethereum"},
		{"mainnet", "ethereum"},
		{"bnb", "bsc"},
		{"binance", "bsc"},
		{"matic", "polygon"},
		{"avax", "avalanche"},
		{"ethereum", "ethereum"},
		{"  Polygon ", "polygon"},
		{"", ""},
		{"unknownchain", "unknownchain"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeChain(tt.input); got != tt.expected {
				t.Errorf("NormalizeChain(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		wantErr bool
	}{
		{"coin id", "bitcoin", false},
		{"slug with dash", "terra-luna", false},
		{"contract address", "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"truncated address", "0x1f9840", true},
		{"overlong address", "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984ff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubject(tt.subject)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSubject) {
					t.Errorf("expected ErrInvalidSubject, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestIsContractAddress(t *testing.T) {
	if !IsContractAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984") {
		t.Error("expected contract address detection")
	}
	if IsContractAddress("bitcoin") {
		t.Error("coin id is not a contract address")
	}
	if IsContractAddress("0x123") {
		t.Error("short hex string is not a contract address")
	}
}
