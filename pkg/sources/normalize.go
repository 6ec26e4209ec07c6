package sources

import "strings"

// chainAliases maps common chain spellings to their canonical name.
// Canonical names follow the chain registry keys used in configuration.
var chainAliases = map[string]string{
	"eth":       "ethereum",
	"ether":     "ethereum",
	"mainnet":   "ethereum",
	"binance":   "bsc",
	"bnb":       "bsc",
	"matic":     "polygon",
	"arb":       "arbitrum",
	"arbitrum1": "arbitrum",
	"op":        "optimism",
	"avax":      "avalanche",
	"ftm":       "fantom",
}

// NormalizeChain lower-cases a chain name and resolves known aliases to
// the canonical name. An empty chain stays empty (chain-agnostic query).
func NormalizeChain(chain string) string {
	c := strings.ToLower(strings.TrimSpace(chain))
	if canonical, ok := chainAliases[c]; ok {
		return canonical
	}
	return c
}

// ValidateSubject checks that a query subject is usable: a non-empty
// token identifier ("bitcoin") or a 0x-prefixed contract address.
func ValidateSubject(subject string) error {
	s := strings.TrimSpace(subject)
	if s == "" {
		return ErrInvalidSubject
	}
	if strings.HasPrefix(s, "0x") && len(s) != 42 {
		return ErrInvalidSubject
	}
	return nil
}

// IsContractAddress reports whether a subject looks like an EVM
// contract address rather than a token identifier.
func IsContractAddress(subject string) bool {
	return strings.HasPrefix(strings.ToLower(subject), "0x") && len(subject) == 42
}
