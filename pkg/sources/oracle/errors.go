// Package oracle provides on-chain oracle price sources (Chainlink).
package oracle

import "errors"

var (
	// ErrChainRequired indicates that the chain name configuration is required.
	ErrChainRequired = errors.New("chain is required")
	// ErrNegativeAnswer indicates a non-positive answer from the feed.
	ErrNegativeAnswer = errors.New("feed answer is not positive")
	// ErrStaleRound indicates the latest round is older than the allowed age.
	ErrStaleRound = errors.New("feed round is stale")
)
