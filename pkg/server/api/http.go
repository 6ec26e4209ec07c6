// Package api provides HTTP and WebSocket API endpoints for the price service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tc.com/token-prices/pkg/config"
	"tc.com/token-prices/pkg/engine"
	"tc.com/token-prices/pkg/logging"
	"tc.com/token-prices/pkg/metrics"
	"tc.com/token-prices/pkg/sources"
)

// Server represents the HTTP API server.
type Server struct {
	httpCfg   config.HTTPConfig
	engine    *engine.Engine
	chains    []config.ChainConfig
	dexes     []config.DexConfig
	server    *http.Server
	logger    *logging.Logger
	wsServer  *WebSocketServer   // Optional WebSocket streamer
	discovery sources.Discoverer // Optional search/trending/market backend
}

// NewServer creates a new HTTP API server.
func NewServer(cfg *config.Config, eng *engine.Engine, logger *logging.Logger) *Server {
	return &Server{
		httpCfg: cfg.Server.HTTP,
		engine:  eng,
		chains:  cfg.Chains,
		dexes:   cfg.Dexes,
		logger:  logger,
	}
}

// SetWebSocketServer sets the WebSocket server for streaming updates.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// SetDiscovery sets the backend for the search, trending and market
// endpoints. Without one those endpoints answer 503.
func (s *Server) SetDiscovery(d sources.Discoverer) {
	s.discovery = d
}

// Start starts the HTTP server.
func (s *Server) Start() error {
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
	if s.wsServer != nil {
		mux.HandleFunc("/ws", s.wsServer.handleWebSocket)
	}

	s.server = &http.Server{
		Addr:              s.httpCfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.httpCfg.Addr, "tls", s.httpCfg.TLS.Enabled)
	var err error
	if s.httpCfg.TLS.Enabled {
		err = s.server.ListenAndServeTLS(s.httpCfg.TLS.Cert, s.httpCfg.TLS.Key)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// queryFromRequest builds a PriceQuery from request parameters.
func queryFromRequest(r *http.Request, subject string) sources.PriceQuery {
	class := sources.DataClass(r.URL.Query().Get("class"))
	if class == "" {
		class = sources.DataClassSpotPrice
	}
	return sources.PriceQuery{
		Subject:       subject,
		QuoteCurrency: r.URL.Query().Get("quote"),
		Chain:         r.URL.Query().Get("chain"),
		DataClass:     class,
	}
}

// handlePrice handles GET /v1/price?subject=bitcoin&quote=usd&class=spot_price.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/price", status, time.Since(start))
	}()

	subject := r.URL.Query().Get("subject")
	if subject == "" {
		status = "400"
		http.Error(w, "subject parameter is required", http.StatusBadRequest)
		return
	}

	query := queryFromRequest(r, subject)
	result, err := s.engine.Resolve(r.Context(), query)
	if err != nil {
		status = resolveErrorStatus(err)
		s.logger.Warn("Price resolution failed", "subject", subject, "error", err.Error())
		http.Error(w, err.Error(), statusCode(status))
		return
	}

	s.notifyStream(query, result)
	s.sendJSON(w, result)
}

// batchResponseItem is one element of the /v1/prices response.
type batchResponseItem struct {
	Subject string               `json:"subject"`
	Result  *sources.PriceResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// handlePrices handles GET /v1/prices?subjects=bitcoin,ethereum&quote=usd.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/prices", status, time.Since(start))
	}()

	subjectsParam := r.URL.Query().Get("subjects")
	if subjectsParam == "" {
		status = "400"
		http.Error(w, "subjects parameter is required", http.StatusBadRequest)
		return
	}

	subjects := strings.Split(subjectsParam, ",")
	queries := make([]sources.PriceQuery, 0, len(subjects))
	for _, subject := range subjects {
		queries = append(queries, queryFromRequest(r, strings.TrimSpace(subject)))
	}

	results := s.engine.ResolveBatch(r.Context(), queries)

	items := make([]batchResponseItem, 0, len(results))
	for i := range results {
		item := batchResponseItem{Subject: results[i].Query.Subject}
		if results[i].Err != nil {
			item.Error = results[i].Err.Error()
		} else {
			item.Result = &results[i].Result
			s.notifyStream(results[i].Query, results[i].Result)
		}
		items = append(items, item)
	}

	s.sendJSON(w, items)
}

// handleHistory handles GET /v1/history?subject=bitcoin&quote=usd.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/history", status, time.Since(start))
	}()

	subject := r.URL.Query().Get("subject")
	if subject == "" {
		status = "400"
		http.Error(w, "subject parameter is required", http.StatusBadRequest)
		return
	}

	query := queryFromRequest(r, subject)
	query.DataClass = sources.DataClassHistory

	result, err := s.engine.Resolve(r.Context(), query)
	if err != nil {
		status = resolveErrorStatus(err)
		s.logger.Warn("History resolution failed", "subject", subject, "error", err.Error())
		http.Error(w, err.Error(), statusCode(status))
		return
	}

	s.sendJSON(w, result)
}

// limitParam parses the limit query parameter, falling back on the
// default for missing or unusable values.
func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// handleSearch handles GET /v1/search?query=bit&limit=10.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/search", status, time.Since(start))
	}()

	if s.discovery == nil {
		status = "503"
		http.Error(w, "no discovery-capable source configured", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		status = "400"
		http.Error(w, "query parameter is required", http.StatusBadRequest)
		return
	}

	matches, err := s.discovery.Search(r.Context(), query, limitParam(r, 10))
	if err != nil {
		status = "503"
		s.logger.Warn("Token search failed", "query", query, "error", err.Error())
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.sendJSON(w, matches)
}

// handleTrending handles GET /v1/trending?limit=10.
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/trending", status, time.Since(start))
	}()

	if s.discovery == nil {
		status = "503"
		http.Error(w, "no discovery-capable source configured", http.StatusServiceUnavailable)
		return
	}

	trending, err := s.discovery.Trending(r.Context(), limitParam(r, 10))
	if err != nil {
		status = "503"
		s.logger.Warn("Trending lookup failed", "error", err.Error())
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.sendJSON(w, trending)
}

// handleMarket handles GET /v1/market.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/market", status, time.Since(start))
	}()

	if s.discovery == nil {
		status = "503"
		http.Error(w, "no discovery-capable source configured", http.StatusServiceUnavailable)
		return
	}

	overview, err := s.discovery.MarketOverview(r.Context())
	if err != nil {
		status = "503"
		s.logger.Warn("Market overview failed", "error", err.Error())
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.sendJSON(w, overview)
}

// chainInfo is the /v1/chains response element.
type chainInfo struct {
	Name    string `json:"name"`
	ChainID uint64 `json:"chain_id"`
}

// handleChains handles GET /v1/chains.
func (s *Server) handleChains(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/v1/chains", "200", time.Since(start))
	}()

	chains := make([]chainInfo, 0, len(s.chains))
	for _, c := range s.chains {
		chains = append(chains, chainInfo{Name: c.Name, ChainID: c.ChainID})
	}
	s.sendJSON(w, chains)
}

// dexInfo is the /v1/dexes response element.
type dexInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Website string   `json:"website,omitempty"`
	Chains  []string `json:"chains,omitempty"`
	SwapFee string   `json:"swap_fee,omitempty"`
}

// handleDexes handles GET /v1/dexes.
func (s *Server) handleDexes(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/v1/dexes", "200", time.Since(start))
	}()

	dexes := make([]dexInfo, 0, len(s.dexes))
	for _, d := range s.dexes {
		dexes = append(dexes, dexInfo{
			ID:      d.ID,
			Name:    d.Name,
			Website: d.Website,
			Chains:  d.Chains,
			SwapFee: d.SwapFee,
		})
	}
	s.sendJSON(w, dexes)
}

// notifyStream pushes live results to WebSocket subscribers.
func (s *Server) notifyStream(query sources.PriceQuery, result sources.PriceResult) {
	if s.wsServer == nil || result.Freshness != sources.FreshnessLive {
		return
	}
	s.wsServer.SendUpdate(query, result)
}

// resolveErrorStatus maps a resolution error to an HTTP status string.
func resolveErrorStatus(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidQuery):
		return "400"
	case errors.Is(err, engine.ErrNoCandidates):
		return "404"
	default:
		return "503"
	}
}

func statusCode(status string) int {
	switch status {
	case "400":
		return http.StatusBadRequest
	case "404":
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
