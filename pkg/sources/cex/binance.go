package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"tc.com/token-prices/pkg/sources"
	"tc.com/token-prices/pkg/version"
)

const (
	binanceBaseURL = "https://api.binance.com"
	binanceTimeout = 10 * time.Second
)

// BinanceSource serves spot prices from the Binance REST API. It needs
// a symbol map in config ("symbols": subject => exchange symbol, e.g.
// "bitcoin" => "BTCUSDT") because Binance trades exchange pairs, not
// coin ids.
type BinanceSource struct {
	*sources.BaseSource

	baseURL string
	symbols map[string]string
	client  *http.Client
}

// binanceTicker is the /api/v3/ticker/price response.
type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// NewBinanceSource creates a new Binance source.
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	symbols := sources.GetStringMapFromConfig(config, "symbols")
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: binance needs a symbols map", sources.ErrNoPairsConfigured)
	}

	// Normalize the subject side once so lookups match normalized queries.
	normalized := make(map[string]string, len(symbols))
	for subject, symbol := range symbols {
		normalized[strings.ToLower(subject)] = strings.ToUpper(symbol)
	}

	base := sources.NewBaseSource("binance", sources.SourceTypeCEX, []sources.DataClass{
		sources.DataClassSpotPrice,
	}, logger)

	return &BinanceSource{
		BaseSource: base,
		baseURL:    sources.GetStringFromConfig(config, "base_url", binanceBaseURL),
		symbols:    normalized,
		client: &http.Client{
			Timeout: sources.GetDurationFromConfig(config, "timeout", binanceTimeout),
		},
	}, nil
}

// Initialize prepares the source for operation
func (s *BinanceSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing Binance source", "symbols", len(s.symbols))
	return nil
}

// Close releases any resources held by the source
func (s *BinanceSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Fetch answers a single query.
func (s *BinanceSource) Fetch(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	if query.DataClass != sources.DataClassSpotPrice {
		return sources.PriceResult{}, fmt.Errorf("%w: data class %q", sources.ErrUnsupported, query.DataClass)
	}

	symbol, ok := s.symbols[query.Subject]
	if !ok {
		return sources.PriceResult{}, fmt.Errorf("%w: no symbol mapping for %s", sources.ErrSubjectNotFound, query.Subject)
	}

	reqURL := s.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return sources.PriceResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := s.client.Do(req)
	if err != nil {
		return sources.PriceResult{}, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return sources.PriceResult{}, fmt.Errorf("%w: status 429", sources.ErrThrottled)
	case resp.StatusCode != http.StatusOK:
		return sources.PriceResult{}, fmt.Errorf("%w: %d", sources.ErrUnexpectedStatus, resp.StatusCode)
	}

	var ticker binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return sources.PriceResult{}, fmt.Errorf("%w: %v", sources.ErrInvalidResponse, err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return sources.PriceResult{}, fmt.Errorf("%w: bad price %q", sources.ErrInvalidResponse, ticker.Price)
	}

	return sources.PriceResult{
		Value:         price,
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    time.Now(),
	}, nil
}
