// Package evm provides EVM-based price sources (Uniswap-V2-style pairs).
package evm

import "errors"

var (
	// ErrChainRequired indicates that the chain name configuration is required.
	ErrChainRequired = errors.New("chain is required")
	// ErrPairsConfigRequired indicates that pairs configuration is required.
	ErrPairsConfigRequired = errors.New("pairs configuration is required")
)
