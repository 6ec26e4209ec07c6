package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"tc.com/token-prices/pkg/sources"
	"tc.com/token-prices/pkg/version"
)

const (
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"
	coingeckoTimeout = 10 * time.Second

	// Free API without key only serves a couple of days of history.
	coingeckoDefaultHistoryDays = 1
)

// CoinGeckoSource answers queries against the CoinGecko REST API.
// Subjects are CoinGecko coin ids ("bitcoin", "terra-luna"), not
// contract addresses.
type CoinGeckoSource struct {
	*sources.BaseSource

	baseURL     string
	apiKey      string
	historyDays int
	client      *http.Client
}

// NewCoinGeckoSource creates a new CoinGecko source.
func NewCoinGeckoSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	base := sources.NewBaseSource("coingecko", sources.SourceTypeCEX, []sources.DataClass{
		sources.DataClassSpotPrice,
		sources.DataClassMarketData,
		sources.DataClassMetadata,
		sources.DataClassHistory,
	}, logger)

	return &CoinGeckoSource{
		BaseSource:  base,
		baseURL:     sources.GetStringFromConfig(config, "base_url", coingeckoBaseURL),
		apiKey:      sources.GetStringFromConfig(config, "api_key", ""),
		historyDays: sources.GetIntFromConfig(config, "history_days", coingeckoDefaultHistoryDays),
		client: &http.Client{
			Timeout: sources.GetDurationFromConfig(config, "timeout", coingeckoTimeout),
		},
	}, nil
}

// Initialize prepares the source for operation
func (s *CoinGeckoSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing CoinGecko source", "has_api_key", s.apiKey != "")
	return nil
}

// Close releases any resources held by the source
func (s *CoinGeckoSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Fetch answers a single query.
func (s *CoinGeckoSource) Fetch(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	if sources.IsContractAddress(query.Subject) {
		return sources.PriceResult{}, fmt.Errorf("%w: contract addresses require a coin id here", sources.ErrUnsupported)
	}

	switch query.DataClass {
	case sources.DataClassSpotPrice:
		return s.fetchSimple(ctx, query, false)
	case sources.DataClassMarketData:
		return s.fetchSimple(ctx, query, true)
	case sources.DataClassMetadata:
		return s.fetchCoin(ctx, query)
	case sources.DataClassHistory:
		return s.fetchHistory(ctx, query)
	default:
		return sources.PriceResult{}, fmt.Errorf("%w: data class %q", sources.ErrUnsupported, query.DataClass)
	}
}

// fetchSimple uses /simple/price, optionally with the market fields.
func (s *CoinGeckoSource) fetchSimple(ctx context.Context, query sources.PriceQuery, market bool) (sources.PriceResult, error) {
	params := url.Values{}
	params.Set("ids", query.Subject)
	params.Set("vs_currencies", query.QuoteCurrency)
	if market {
		params.Set("include_market_cap", "true")
		params.Set("include_24hr_vol", "true")
		params.Set("include_24hr_change", "true")
	}

	var data map[string]map[string]float64
	if err := s.getJSON(ctx, "/simple/price", params, &data); err != nil {
		return sources.PriceResult{}, err
	}

	coin, ok := data[query.Subject]
	if !ok {
		return sources.PriceResult{}, fmt.Errorf("%w: %s", sources.ErrSubjectNotFound, query.Subject)
	}
	price, ok := coin[query.QuoteCurrency]
	if !ok {
		return sources.PriceResult{}, fmt.Errorf("%w: no %s quote for %s", sources.ErrInvalidResponse, query.QuoteCurrency, query.Subject)
	}

	result := sources.PriceResult{
		Value:         decimal.NewFromFloat(price),
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    time.Now(),
	}

	if market {
		if v, ok := coin[query.QuoteCurrency+"_market_cap"]; ok {
			d := decimal.NewFromFloat(v)
			result.MarketCap = &d
		}
		if v, ok := coin[query.QuoteCurrency+"_24h_vol"]; ok {
			d := decimal.NewFromFloat(v)
			result.Volume24h = &d
		}
		if v, ok := coin[query.QuoteCurrency+"_24h_change"]; ok {
			d := decimal.NewFromFloat(v)
			result.Change24h = &d
		}
	}

	return result, nil
}

// coinResponse is the subset of /coins/{id} we consume.
type coinResponse struct {
	MarketData struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		MarketCap                map[string]float64 `json:"market_cap"`
		TotalVolume              map[string]float64 `json:"total_volume"`
		PriceChangePercentage24h float64            `json:"price_change_percentage_24h"`
	} `json:"market_data"`
}

// fetchCoin uses /coins/{id} for the heavier metadata view.
func (s *CoinGeckoSource) fetchCoin(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")

	var data coinResponse
	if err := s.getJSON(ctx, "/coins/"+url.PathEscape(query.Subject), params, &data); err != nil {
		return sources.PriceResult{}, err
	}

	price, ok := data.MarketData.CurrentPrice[query.QuoteCurrency]
	if !ok {
		return sources.PriceResult{}, fmt.Errorf("%w: no %s quote for %s", sources.ErrInvalidResponse, query.QuoteCurrency, query.Subject)
	}

	result := sources.PriceResult{
		Value:         decimal.NewFromFloat(price),
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    time.Now(),
	}
	if v, ok := data.MarketData.MarketCap[query.QuoteCurrency]; ok {
		d := decimal.NewFromFloat(v)
		result.MarketCap = &d
	}
	if v, ok := data.MarketData.TotalVolume[query.QuoteCurrency]; ok {
		d := decimal.NewFromFloat(v)
		result.Volume24h = &d
	}
	change := decimal.NewFromFloat(data.MarketData.PriceChangePercentage24h)
	result.Change24h = &change

	return result, nil
}

// fetchHistory uses /coins/{id}/market_chart. Points arrive as
// [unix_ms, price] pairs.
func (s *CoinGeckoSource) fetchHistory(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	params := url.Values{}
	params.Set("vs_currency", query.QuoteCurrency)
	params.Set("days", fmt.Sprintf("%d", s.historyDays))

	var data struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := s.getJSON(ctx, "/coins/"+url.PathEscape(query.Subject)+"/market_chart", params, &data); err != nil {
		return sources.PriceResult{}, err
	}

	if len(data.Prices) == 0 {
		return sources.PriceResult{}, fmt.Errorf("%w: empty history for %s", sources.ErrInvalidResponse, query.Subject)
	}

	history := make([]sources.PricePoint, 0, len(data.Prices))
	for _, p := range data.Prices {
		history = append(history, sources.PricePoint{
			Timestamp: time.UnixMilli(int64(p[0])).UTC(),
			Price:     decimal.NewFromFloat(p[1]),
		})
	}

	last := history[len(history)-1]
	return sources.PriceResult{
		Value:         last.Price,
		QuoteCurrency: query.QuoteCurrency,
		ObservedAt:    last.Timestamp,
		History:       history,
	}, nil
}

// getJSON executes a GET request and decodes the JSON response.
func (s *CoinGeckoSource) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if s.apiKey != "" {
		params.Set("x_cg_pro_api_key", s.apiKey)
	}

	reqURL := s.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		s.Logger().Warn("CoinGecko rate limit exceeded", "has_api_key", s.apiKey != "")
		return fmt.Errorf("%w: status 429", sources.ErrThrottled)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", sources.ErrSubjectNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %d", sources.ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", sources.ErrInvalidResponse, err)
	}
	return nil
}
