package cex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"tc.com/token-prices/pkg/sources"
)

const discoveryDefaultLimit = 10

// searchResponse is the subset of /search we consume.
type searchResponse struct {
	Coins []struct {
		ID            string `json:"id"`
		Symbol        string `json:"symbol"`
		Name          string `json:"name"`
		Large         string `json:"large"`
		MarketCapRank int    `json:"market_cap_rank"`
	} `json:"coins"`
}

// Search finds coins matching a free-text query via /search.
func (s *CoinGeckoSource) Search(ctx context.Context, query string, limit int) ([]sources.TokenMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", sources.ErrInvalidSubject)
	}
	if limit <= 0 {
		limit = discoveryDefaultLimit
	}

	params := url.Values{}
	params.Set("query", query)

	var data searchResponse
	if err := s.getJSON(ctx, "/search", params, &data); err != nil {
		return nil, err
	}

	if len(data.Coins) > limit {
		data.Coins = data.Coins[:limit]
	}
	matches := make([]sources.TokenMatch, 0, len(data.Coins))
	for _, coin := range data.Coins {
		matches = append(matches, sources.TokenMatch{
			ID:            coin.ID,
			Symbol:        strings.ToUpper(coin.Symbol),
			Name:          coin.Name,
			ImageURL:      coin.Large,
			MarketCapRank: coin.MarketCapRank,
		})
	}
	return matches, nil
}

// trendingResponse is the subset of /search/trending we consume.
type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID            string `json:"id"`
			Symbol        string `json:"symbol"`
			Name          string `json:"name"`
			Large         string `json:"large"`
			MarketCapRank int    `json:"market_cap_rank"`
		} `json:"item"`
	} `json:"coins"`
}

// Trending returns the currently most searched coins, enriched with
// USD prices from a single batched /simple/price call.
func (s *CoinGeckoSource) Trending(ctx context.Context, limit int) ([]sources.TrendingToken, error) {
	if limit <= 0 {
		limit = discoveryDefaultLimit
	}

	var data trendingResponse
	if err := s.getJSON(ctx, "/search/trending", url.Values{}, &data); err != nil {
		return nil, err
	}
	if len(data.Coins) > limit {
		data.Coins = data.Coins[:limit]
	}

	ids := make([]string, 0, len(data.Coins))
	for _, coin := range data.Coins {
		ids = append(ids, coin.Item.ID)
	}
	prices := s.trendingPrices(ctx, ids)

	trending := make([]sources.TrendingToken, 0, len(data.Coins))
	for i, coin := range data.Coins {
		token := sources.TrendingToken{
			TokenMatch: sources.TokenMatch{
				ID:            coin.Item.ID,
				Symbol:        strings.ToUpper(coin.Item.Symbol),
				Name:          coin.Item.Name,
				ImageURL:      coin.Item.Large,
				MarketCapRank: coin.Item.MarketCapRank,
			},
			Rank: i + 1,
		}
		if quote, ok := prices[coin.Item.ID]; ok {
			if v, ok := quote["usd"]; ok {
				d := decimal.NewFromFloat(v)
				token.Price = &d
			}
			if v, ok := quote["usd_24h_change"]; ok {
				d := decimal.NewFromFloat(v)
				token.Change24h = &d
			}
		}
		trending = append(trending, token)
	}
	return trending, nil
}

// trendingPrices fetches USD quotes for ids in one request. The ranking
// is still useful without prices, so failures only log.
func (s *CoinGeckoSource) trendingPrices(ctx context.Context, ids []string) map[string]map[string]float64 {
	if len(ids) == 0 {
		return nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")

	var prices map[string]map[string]float64
	if err := s.getJSON(ctx, "/simple/price", params, &prices); err != nil {
		s.Logger().Warn("Failed to price trending coins", "error", err)
		return nil
	}
	return prices
}

// globalResponse is the subset of /global we consume.
type globalResponse struct {
	Data struct {
		TotalMarketCap         map[string]float64 `json:"total_market_cap"`
		TotalVolume            map[string]float64 `json:"total_volume"`
		MarketCapChange24h     float64            `json:"market_cap_change_percentage_24h_usd"`
		MarketCapPercentage    map[string]float64 `json:"market_cap_percentage"`
		ActiveCryptocurrencies int                `json:"active_cryptocurrencies"`
		Markets                int                `json:"markets"`
		UpdatedAt              int64              `json:"updated_at"`
	} `json:"data"`
}

// MarketOverview returns market-wide statistics from /global.
func (s *CoinGeckoSource) MarketOverview(ctx context.Context) (sources.MarketOverview, error) {
	var data globalResponse
	if err := s.getJSON(ctx, "/global", url.Values{}, &data); err != nil {
		return sources.MarketOverview{}, err
	}

	overview := sources.MarketOverview{
		TotalMarketCap:     decimal.NewFromFloat(data.Data.TotalMarketCap["usd"]),
		TotalVolume24h:     decimal.NewFromFloat(data.Data.TotalVolume["usd"]),
		MarketCapChange24h: decimal.NewFromFloat(data.Data.MarketCapChange24h),
		BitcoinDominance:   decimal.NewFromFloat(data.Data.MarketCapPercentage["btc"]),
		EthereumDominance:  decimal.NewFromFloat(data.Data.MarketCapPercentage["eth"]),
		ActiveCurrencies:   data.Data.ActiveCryptocurrencies,
		Markets:            data.Data.Markets,
		UpdatedAt:          time.Now(),
	}
	if data.Data.UpdatedAt > 0 {
		overview.UpdatedAt = time.Unix(data.Data.UpdatedAt, 0).UTC()
	}
	return overview, nil
}
