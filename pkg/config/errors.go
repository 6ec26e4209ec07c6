// Package config provides configuration loading and validation for token-prices.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrNoSourcesEnabled indicates that no sources are enabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrInvalidSourceType indicates that the source type is invalid.
	ErrInvalidSourceType = errors.New("invalid source type")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrNegativePriority indicates that a source priority is negative.
	ErrNegativePriority = errors.New("priority must be >= 0")
	// ErrInvalidDataClass indicates an unknown TTL data class key.
	ErrInvalidDataClass = errors.New("invalid data class")
	// ErrInvalidBreaker indicates invalid breaker settings.
	ErrInvalidBreaker = errors.New("invalid breaker settings")
	// ErrChainNameRequired indicates that a chain entry lacks a name.
	ErrChainNameRequired = errors.New("chain name is required")
	// ErrChainRPCURLRequired indicates that a chain entry lacks an rpc_url.
	ErrChainRPCURLRequired = errors.New("chain rpc_url is required")
	// ErrDexIDRequired indicates that a dex entry lacks an id.
	ErrDexIDRequired = errors.New("dex id is required")
	// ErrDexNameRequired indicates that a dex entry lacks a name.
	ErrDexNameRequired = errors.New("dex name is required")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
