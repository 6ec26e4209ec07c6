package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tc.com/token-prices/pkg/config"
	"tc.com/token-prices/pkg/engine"
	"tc.com/token-prices/pkg/logging"
	"tc.com/token-prices/pkg/sources"
)

// stubSource answers every supported query with a fixed price.
type stubSource struct {
	price decimal.Decimal
	fail  bool
}

func (s *stubSource) Initialize(_ context.Context) error { return nil }
func (s *stubSource) Name() string                       { return "stub" }
func (s *stubSource) Type() sources.SourceType           { return sources.SourceTypeCEX }
func (s *stubSource) Supports(c sources.DataClass) bool {
	return c == sources.DataClassSpotPrice || c == sources.DataClassHistory
}
func (s *stubSource) Close() error { return nil }

func (s *stubSource) Fetch(_ context.Context, q sources.PriceQuery) (sources.PriceResult, error) {
	if s.fail {
		return sources.PriceResult{}, fmt.Errorf("%w: down", sources.ErrUnavailable)
	}
	result := sources.PriceResult{
		Value:         s.price,
		QuoteCurrency: q.QuoteCurrency,
		ObservedAt:    time.Now(),
	}
	if q.DataClass == sources.DataClassHistory {
		result.History = []sources.PricePoint{{Timestamp: time.Now(), Price: s.price}}
	}
	return result, nil
}

func newTestServer(t *testing.T, src sources.Source) *Server {
	t.Helper()

	eng := engine.New(engine.Options{})
	eng.Register(src, sources.SourceDescriptor{
		ID:       "stub",
		Priority: 1,
		Capabilities: []sources.DataClass{
			sources.DataClassSpotPrice,
			sources.DataClassHistory,
		},
		RateLimit: 6000,
		Burst:     100,
	})

	cfg := &config.Config{
		Server: config.ServerConfig{HTTP: config.HTTPConfig{Addr: ":0"}},
		Chains: []config.ChainConfig{
			{Name: "ethereum", ChainID: 1, RPCURL: "https://rpc.example"},
			{Name: "bsc", ChainID: 56, RPCURL: "https://bsc.example"},
		},
		Dexes: []config.DexConfig{
			{ID: "uniswap_v2", Name: "Uniswap V2", Chains: []string{"ethereum"}, SwapFee: "0.3%"},
		},
	}
	return NewServer(cfg, eng, logging.NewNoopLogger())
}

func serveRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/price", s.handlePrice)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/trending", s.handleTrending)
	mux.HandleFunc("/v1/market", s.handleMarket)
	mux.HandleFunc("/v1/chains", s.handleChains)
	mux.HandleFunc("/v1/dexes", s.handleDexes)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	rec := serveRequest(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("expected OK body, got %q", rec.Body.String())
	}
}

func TestServer_Price(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(65000)})

	rec := serveRequest(t, s, "/v1/price?subject=bitcoin&quote=usd")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result sources.PriceResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.Value.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("expected 65000, got %s", result.Value)
	}
	if result.SourceID != "stub" {
		t.Errorf("expected source stub, got %s", result.SourceID)
	}
	if result.Freshness != sources.FreshnessLive {
		t.Errorf("expected live, got %s", result.Freshness)
	}
}

func TestServer_PriceMissingSubject(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	rec := serveRequest(t, s, "/v1/price")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_PriceAllSourcesDown(t *testing.T) {
	s := newTestServer(t, &stubSource{fail: true})

	rec := serveRequest(t, s, "/v1/price?subject=bitcoin")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestServer_PriceUnsupportedClass(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	rec := serveRequest(t, s, "/v1/price?subject=bitcoin&class=market_data")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for uncovered data class, got %d", rec.Code)
	}
}

func TestServer_PricesBatch(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(10)})

	rec := serveRequest(t, s, "/v1/prices?subjects=bitcoin,%20ethereum&quote=usd")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var items []batchResponseItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.Error != "" {
			t.Errorf("unexpected error for %s: %s", item.Subject, item.Error)
		}
		if item.Result == nil || !item.Result.Value.Equal(decimal.NewFromInt(10)) {
			t.Errorf("unexpected result for %s: %+v", item.Subject, item.Result)
		}
	}
}

func TestServer_PricesBatchMissingSubjects(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	rec := serveRequest(t, s, "/v1/prices")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_History(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(42)})

	rec := serveRequest(t, s, "/v1/history?subject=bitcoin&quote=usd")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result sources.PriceResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.History) != 1 {
		t.Errorf("expected 1 history point, got %d", len(result.History))
	}
}

func TestServer_StartTLSUsesCertFiles(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{HTTP: config.HTTPConfig{
			Addr: "127.0.0.1:0",
			TLS: config.TLSConfig{
				Enabled: true,
				Cert:    filepath.Join(t.TempDir(), "missing-cert.pem"),
				Key:     filepath.Join(t.TempDir(), "missing-key.pem"),
			},
		}},
	}
	s := NewServer(cfg, engine.New(engine.Options{}), logging.NewNoopLogger())

	// With TLS enabled the server must go through the TLS listener,
	// which fails fast on unreadable cert files instead of silently
	// serving plaintext.
	if err := s.Start(); err == nil {
		t.Error("expected TLS start to fail with missing cert files")
	}
}

// stubDiscoverer returns canned search and market data.
type stubDiscoverer struct {
	fail bool
}

func (d *stubDiscoverer) Search(_ context.Context, query string, limit int) ([]sources.TokenMatch, error) {
	if d.fail {
		return nil, fmt.Errorf("%w: down", sources.ErrUnavailable)
	}
	return []sources.TokenMatch{
		{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", MarketCapRank: 1},
	}, nil
}

func (d *stubDiscoverer) Trending(_ context.Context, limit int) ([]sources.TrendingToken, error) {
	if d.fail {
		return nil, fmt.Errorf("%w: down", sources.ErrUnavailable)
	}
	price := decimal.NewFromInt(65000)
	return []sources.TrendingToken{
		{TokenMatch: sources.TokenMatch{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"}, Rank: 1, Price: &price},
	}, nil
}

func (d *stubDiscoverer) MarketOverview(_ context.Context) (sources.MarketOverview, error) {
	if d.fail {
		return sources.MarketOverview{}, fmt.Errorf("%w: down", sources.ErrUnavailable)
	}
	return sources.MarketOverview{
		TotalMarketCap:   decimal.NewFromInt(2500000000000),
		BitcoinDominance: decimal.NewFromFloat(52.3),
		Markets:          800,
		UpdatedAt:        time.Now(),
	}, nil
}

func TestServer_Search(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})
	s.SetDiscovery(&stubDiscoverer{})

	rec := serveRequest(t, s, "/v1/search?query=bit")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var matches []sources.TokenMatch
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "bitcoin" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestServer_SearchMissingQuery(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})
	s.SetDiscovery(&stubDiscoverer{})

	rec := serveRequest(t, s, "/v1/search")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_SearchWithoutDiscovery(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	for _, path := range []string{"/v1/search?query=bit", "/v1/trending", "/v1/market"} {
		rec := serveRequest(t, s, path)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503 without a discovery backend, got %d", path, rec.Code)
		}
	}
}

func TestServer_Trending(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})
	s.SetDiscovery(&stubDiscoverer{})

	rec := serveRequest(t, s, "/v1/trending?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var trending []sources.TrendingToken
	if err := json.Unmarshal(rec.Body.Bytes(), &trending); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(trending) != 1 || trending[0].Rank != 1 {
		t.Errorf("unexpected trending: %+v", trending)
	}
	if trending[0].Price == nil || !trending[0].Price.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("unexpected trending price: %+v", trending[0].Price)
	}
}

func TestServer_Market(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})
	s.SetDiscovery(&stubDiscoverer{})

	rec := serveRequest(t, s, "/v1/market")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var overview sources.MarketOverview
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if overview.Markets != 800 {
		t.Errorf("expected 800 markets, got %d", overview.Markets)
	}
}

func TestServer_MarketBackendDown(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})
	s.SetDiscovery(&stubDiscoverer{fail: true})

	rec := serveRequest(t, s, "/v1/market")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestServer_Dexes(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	rec := serveRequest(t, s, "/v1/dexes")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var dexes []dexInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &dexes); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(dexes) != 1 || dexes[0].ID != "uniswap_v2" {
		t.Fatalf("unexpected dexes: %+v", dexes)
	}
	if dexes[0].SwapFee != "0.3%" {
		t.Errorf("unexpected swap fee: %s", dexes[0].SwapFee)
	}
}

func TestServer_Chains(t *testing.T) {
	s := newTestServer(t, &stubSource{price: decimal.NewFromInt(1)})

	rec := serveRequest(t, s, "/v1/chains")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var chains []chainInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &chains); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(chains))
	}
	if chains[0].Name != "ethereum" || chains[0].ChainID != 1 {
		t.Errorf("unexpected chain entry: %+v", chains[0])
	}
}
