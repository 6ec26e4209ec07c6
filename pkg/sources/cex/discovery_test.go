package cex

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"tc.com/token-prices/pkg/sources"
)

func TestCoinGeckoSource_Search(t *testing.T) {
	src := newTestCoinGecko(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "bit" {
			t.Errorf("expected query=bit, got %q", got)
		}
		_, _ = w.Write([]byte(`{"coins":[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","large":"https://img.example/btc.png","market_cap_rank":1},
			{"id":"bitcoin-cash","symbol":"bch","name":"Bitcoin Cash","market_cap_rank":20},
			{"id":"bitgert","symbol":"brise","name":"Bitgert","market_cap_rank":500}
		]}`))
	}))

	matches, err := src.Search(context.Background(), "bit", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected limit applied, got %d matches", len(matches))
	}
	if matches[0].ID != "bitcoin" || matches[0].Symbol != "BTC" {
		t.Errorf("unexpected first match: %+v", matches[0])
	}
	if matches[0].MarketCapRank != 1 {
		t.Errorf("expected rank 1, got %d", matches[0].MarketCapRank)
	}
}

func TestCoinGeckoSource_SearchEmptyQuery(t *testing.T) {
	src := newTestCoinGecko(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty query")
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := src.Search(context.Background(), "   ", 10); !errors.Is(err, sources.ErrInvalidSubject) {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestCoinGeckoSource_Trending(t *testing.T) {
	src := newTestCoinGecko(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/trending":
			_, _ = w.Write([]byte(`{"coins":[
				{"item":{"id":"pepe","symbol":"pepe","name":"Pepe","market_cap_rank":40}},
				{"item":{"id":"bonk","symbol":"bonk","name":"Bonk","market_cap_rank":60}}
			]}`))
		case "/simple/price":
			if got := r.URL.Query().Get("ids"); got != "pepe,bonk" {
				t.Errorf("expected batched ids, got %q", got)
			}
			_, _ = w.Write([]byte(`{"pepe":{"usd":0.0000012,"usd_24h_change":5.2}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	trending, err := src.Trending(context.Background(), 10)
	if err != nil {
		t.Fatalf("Trending failed: %v", err)
	}
	if len(trending) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(trending))
	}
	if trending[0].Rank != 1 || trending[1].Rank != 2 {
		t.Errorf("unexpected ranks: %d, %d", trending[0].Rank, trending[1].Rank)
	}
	if trending[0].Price == nil || !trending[0].Price.Equal(decimal.NewFromFloat(0.0000012)) {
		t.Errorf("unexpected pepe price: %+v", trending[0].Price)
	}
	// bonk was missing from the price response; the ranking survives.
	if trending[1].Price != nil {
		t.Errorf("expected no price for bonk, got %s", trending[1].Price)
	}
}

func TestCoinGeckoSource_TrendingPriceFailureKeepsRanking(t *testing.T) {
	src := newTestCoinGecko(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/trending":
			_, _ = w.Write([]byte(`{"coins":[{"item":{"id":"pepe","symbol":"pepe","name":"Pepe"}}]}`))
		case "/simple/price":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	trending, err := src.Trending(context.Background(), 10)
	if err != nil {
		t.Fatalf("Trending failed: %v", err)
	}
	if len(trending) != 1 || trending[0].ID != "pepe" {
		t.Fatalf("unexpected trending: %+v", trending)
	}
	if trending[0].Price != nil {
		t.Errorf("expected no price after pricing failure, got %s", trending[0].Price)
	}
}

func TestCoinGeckoSource_MarketOverview(t *testing.T) {
	src := newTestCoinGecko(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/global" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{
			"total_market_cap":{"usd":2500000000000},
			"total_volume":{"usd":90000000000},
			"market_cap_change_percentage_24h_usd":1.7,
			"market_cap_percentage":{"btc":52.3,"eth":17.1},
			"active_cryptocurrencies":11000,
			"markets":800,
			"updated_at":1725100000
		}}`))
	}))

	overview, err := src.MarketOverview(context.Background())
	if err != nil {
		t.Fatalf("MarketOverview failed: %v", err)
	}
	if !overview.TotalMarketCap.Equal(decimal.NewFromInt(2500000000000)) {
		t.Errorf("unexpected market cap: %s", overview.TotalMarketCap)
	}
	if !overview.BitcoinDominance.Equal(decimal.NewFromFloat(52.3)) {
		t.Errorf("unexpected btc dominance: %s", overview.BitcoinDominance)
	}
	if overview.ActiveCurrencies != 11000 || overview.Markets != 800 {
		t.Errorf("unexpected counters: %d active, %d markets", overview.ActiveCurrencies, overview.Markets)
	}
	if overview.UpdatedAt.Unix() != 1725100000 {
		t.Errorf("unexpected updated_at: %s", overview.UpdatedAt)
	}
}

func TestCoinGeckoSource_MarketOverviewUpstreamError(t *testing.T) {
	src := newTestCoinGecko(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	if _, err := src.MarketOverview(context.Background()); !errors.Is(err, sources.ErrThrottled) {
		t.Errorf("expected ErrThrottled, got %v", err)
	}
}
