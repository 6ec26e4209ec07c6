// Package sources provides price source adapters and their registry.
package sources

import "errors"

var (
	// ErrUnsupported indicates the source cannot answer the requested data class.
	ErrUnsupported = errors.New("data class not supported by source")
	// ErrUnavailable indicates an upstream call failed or timed out.
	ErrUnavailable = errors.New("source unavailable")
	// ErrThrottled indicates the upstream signaled its own rate limit.
	ErrThrottled = errors.New("throttled by upstream")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrSubjectNotFound indicates the upstream has no data for the subject.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrUnknownSource indicates no factory is registered under the
	// requested type and name.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidSubject indicates an empty or malformed query subject.
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrUnknownChain indicates a chain the source is not configured for.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrClientNotInitialized indicates the client is not initialized.
	ErrClientNotInitialized = errors.New("client not initialized")
	// ErrRPCURLRequired indicates that rpc_url is required.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrNoFeedsConfigured indicates that no oracle feeds are configured.
	ErrNoFeedsConfigured = errors.New("no feeds configured")
	// ErrNoPairsConfigured indicates that no valid pairs are configured.
	ErrNoPairsConfigured = errors.New("no valid pairs configured")
	// ErrZeroLiquidity indicates that there is zero liquidity in the pool.
	ErrZeroLiquidity = errors.New("zero liquidity in pool")
)
