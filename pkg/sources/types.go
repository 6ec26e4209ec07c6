package sources

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType represents the type of price source
type SourceType string

const (
	SourceTypeCEX    SourceType = "cex"
	SourceTypeEVM    SourceType = "evm"
	SourceTypeOracle SourceType = "oracle"
)

// DataClass categorizes price-related data. Each class carries its own
// cache lifetime in the engine.
type DataClass string

const (
	DataClassSpotPrice  DataClass = "spot_price"
	DataClassMarketData DataClass = "market_data"
	DataClassMetadata   DataClass = "metadata"
	DataClassHistory    DataClass = "history"
)

// Freshness describes how a result was produced.
type Freshness string

const (
	FreshnessLive   Freshness = "live"
	FreshnessCached Freshness = "cached"
	FreshnessStale  Freshness = "stale"
)

// PriceQuery identifies a single piece of price data to resolve.
// Subject is either a token identifier (e.g. "bitcoin") or a contract
// address; Chain is only meaningful for on-chain subjects.
type PriceQuery struct {
	Subject       string    `json:"subject"`
	QuoteCurrency string    `json:"quote_currency"`
	Chain         string    `json:"chain,omitempty"`
	DataClass     DataClass `json:"data_class"`
}

// Normalized returns a copy of the query with lower-cased identifiers and
// a canonical chain name, suitable for use as a cache key component.
func (q PriceQuery) Normalized() PriceQuery {
	return PriceQuery{
		Subject:       strings.ToLower(strings.TrimSpace(q.Subject)),
		QuoteCurrency: strings.ToLower(strings.TrimSpace(q.QuoteCurrency)),
		Chain:         NormalizeChain(q.Chain),
		DataClass:     q.DataClass,
	}
}

// CacheKey returns the cache key for the query. Callers must normalize
// the query first.
func (q PriceQuery) CacheKey() string {
	return string(q.DataClass) + "|" + q.Subject + "|" + q.QuoteCurrency + "|" + q.Chain
}

// PricePoint is a single historical observation.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// PriceResult is the answer to a PriceQuery, produced by exactly one
// adapter call or synthesized from cache.
type PriceResult struct {
	Value         decimal.Decimal `json:"value"`
	QuoteCurrency string          `json:"quote_currency"`
	SourceID      string          `json:"source_id"`
	ObservedAt    time.Time       `json:"observed_at"`
	Freshness     Freshness       `json:"freshness"`

	// Market fields, populated for market_data queries when the
	// upstream reports them.
	Change24h *decimal.Decimal `json:"change_24h,omitempty"`
	MarketCap *decimal.Decimal `json:"market_cap,omitempty"`
	Volume24h *decimal.Decimal `json:"volume_24h,omitempty"`

	// History holds the series for history queries; Value is then the
	// most recent point.
	History []PricePoint `json:"history,omitempty"`
}

// SourceDescriptor is the static, read-only configuration of a source.
type SourceDescriptor struct {
	ID           string
	Priority     int // lower = tried first
	Capabilities []DataClass
	RateLimit    int // requests per minute
	Burst        int
}

// Supports reports whether the descriptor covers the given data class.
func (d SourceDescriptor) Supports(class DataClass) bool {
	for _, c := range d.Capabilities {
		if c == class {
			return true
		}
	}
	return false
}

// Source defines the interface that all price source adapters implement.
// Fetch must complete or fail within the context deadline; the engine
// treats a deadline expiry as an unavailable source.
type Source interface {
	// Initialize prepares the source for operation (dials RPC, etc.)
	Initialize(ctx context.Context) error

	// Fetch answers a single query or fails with ErrUnsupported,
	// ErrUnavailable or ErrThrottled (possibly wrapped).
	Fetch(ctx context.Context, query PriceQuery) (PriceResult, error)

	// Name returns the unique name of this source
	Name() string

	// Type returns the type of this source
	Type() SourceType

	// Supports reports whether the source can answer the data class
	Supports(class DataClass) bool

	// Close releases any resources held by the source
	Close() error
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)

// TokenMatch is a single hit from a subject search.
type TokenMatch struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	ImageURL      string `json:"image_url,omitempty"`
	MarketCapRank int    `json:"market_cap_rank,omitempty"`
}

// TrendingToken is one entry of a trending ranking, enriched with the
// current price when the upstream provides it.
type TrendingToken struct {
	TokenMatch
	Rank      int              `json:"rank"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Change24h *decimal.Decimal `json:"change_24h,omitempty"`
}

// MarketOverview aggregates market-wide statistics in USD.
type MarketOverview struct {
	TotalMarketCap     decimal.Decimal `json:"total_market_cap"`
	TotalVolume24h     decimal.Decimal `json:"total_volume_24h"`
	MarketCapChange24h decimal.Decimal `json:"market_cap_change_24h"`
	BitcoinDominance   decimal.Decimal `json:"bitcoin_dominance"`
	EthereumDominance  decimal.Decimal `json:"ethereum_dominance"`
	ActiveCurrencies   int             `json:"active_currencies"`
	Markets            int             `json:"markets"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Discoverer is implemented by sources that can search and rank
// subjects beyond direct price resolution. The API surface exposes the
// first registered source that implements it.
type Discoverer interface {
	// Search finds subjects matching a free-text query, best first.
	Search(ctx context.Context, query string, limit int) ([]TokenMatch, error)

	// Trending returns the currently most searched subjects.
	Trending(ctx context.Context, limit int) ([]TrendingToken, error)

	// MarketOverview returns market-wide statistics.
	MarketOverview(ctx context.Context) (MarketOverview, error)
}
