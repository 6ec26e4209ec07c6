// Package engine implements the price resolution engine: given a price
// query it consults the cache, walks candidate sources in priority
// order behind per-source rate limits and circuit breakers, and falls
// back to stale cache data before failing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tc.com/token-prices/pkg/engine/breaker"
	"tc.com/token-prices/pkg/engine/cache"
	"tc.com/token-prices/pkg/engine/ratelimit"
	"tc.com/token-prices/pkg/logging"
	"tc.com/token-prices/pkg/metrics"
	"tc.com/token-prices/pkg/sources"
)

const (
	// DefaultCallTimeout bounds a single adapter fetch.
	DefaultCallTimeout = 10 * time.Second
	// DefaultBatchConcurrency bounds parallel resolutions in a batch.
	DefaultBatchConcurrency = 4
)

// DefaultTTLs are the per-data-class cache lifetimes, overridable via Options.
var DefaultTTLs = map[sources.DataClass]time.Duration{
	sources.DataClassSpotPrice:  5 * time.Minute,
	sources.DataClassMarketData: 10 * time.Minute,
	sources.DataClassMetadata:   time.Hour,
	sources.DataClassHistory:    24 * time.Hour,
}

// Options configures a new Engine.
type Options struct {
	// TTLOverrides replaces the default TTL for the listed data classes.
	TTLOverrides map[sources.DataClass]time.Duration
	// CallTimeout bounds a single adapter fetch (default 10s).
	CallTimeout time.Duration
	// BatchConcurrency bounds parallel resolutions in ResolveBatch (default 4).
	BatchConcurrency int
	// BreakerDefaults applies to sources without per-source settings.
	BreakerDefaults breaker.Config
	// Logger defaults to a noop logger.
	Logger *logging.Logger
}

type candidate struct {
	source sources.Source
	desc   sources.SourceDescriptor
}

// Engine owns the cache, the per-source rate limiters and breakers, and
// the ordered candidate list. One instance is constructed at startup
// and shared by all request-handling goroutines.
type Engine struct {
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	breakers   *breaker.Breakers
	group      singleflight.Group
	candidates []candidate

	ttl              map[sources.DataClass]time.Duration
	callTimeout      time.Duration
	batchConcurrency int
	logger           *logging.Logger
}

// New creates an engine with no sources registered.
func New(opts Options) *Engine {
	ttl := make(map[sources.DataClass]time.Duration, len(DefaultTTLs))
	for class, d := range DefaultTTLs {
		ttl[class] = d
	}
	for class, d := range opts.TTLOverrides {
		if d > 0 {
			ttl[class] = d
		}
	}

	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	concurrency := opts.BatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	breakerOpts := []breaker.Option{
		breaker.WithTransitionHook(func(sourceID string, to breaker.State) {
			metrics.RecordBreakerTransition(sourceID, string(to))
		}),
	}
	if opts.BreakerDefaults.FailureThreshold > 0 || opts.BreakerDefaults.RecoveryTimeout > 0 {
		breakerOpts = append(breakerOpts, breaker.WithDefaults(opts.BreakerDefaults))
	}

	return &Engine{
		cache:            cache.New(),
		limiter:          ratelimit.New(),
		breakers:         breaker.New(breakerOpts...),
		ttl:              ttl,
		callTimeout:      callTimeout,
		batchConcurrency: concurrency,
		logger:           logger,
	}
}

// Register adds a source with its static descriptor. Candidates are
// kept sorted by priority ascending, ties broken by id for determinism.
func (e *Engine) Register(src sources.Source, desc sources.SourceDescriptor) {
	e.limiter.Configure(desc.ID, desc.RateLimit, desc.Burst)

	e.candidates = append(e.candidates, candidate{source: src, desc: desc})
	sort.SliceStable(e.candidates, func(i, j int) bool {
		a, b := e.candidates[i].desc, e.candidates[j].desc
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
}

// ConfigureBreaker installs per-source breaker settings.
func (e *Engine) ConfigureBreaker(sourceID string, cfg breaker.Config) {
	e.breakers.Configure(sourceID, cfg)
}

// Run starts the background cache sweep until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.cache.Run(ctx)
}

// Close releases all source resources.
func (e *Engine) Close() {
	for _, c := range e.candidates {
		if err := c.source.Close(); err != nil {
			e.logger.Warn("Failed to close source", "source", c.desc.ID, "error", err)
		}
	}
}

// TTLFor returns the cache lifetime for a data class.
func (e *Engine) TTLFor(class sources.DataClass) time.Duration {
	if d, ok := e.ttl[class]; ok {
		return d
	}
	return DefaultTTLs[sources.DataClassSpotPrice]
}

// Sources returns the registered descriptors in candidate order.
func (e *Engine) Sources() []sources.SourceDescriptor {
	descs := make([]sources.SourceDescriptor, 0, len(e.candidates))
	for _, c := range e.candidates {
		descs = append(descs, c.desc)
	}
	return descs
}

// BreakerState returns the breaker state for a source id.
func (e *Engine) BreakerState(sourceID string) breaker.State {
	return e.breakers.State(sourceID)
}

// BreakerFailures returns the consecutive failure count for a source id.
func (e *Engine) BreakerFailures(sourceID string) int {
	return e.breakers.ConsecutiveFailures(sourceID)
}

// Resolve answers a single price query. Cache hits return immediately
// with freshness "cached"; misses walk the candidate sources in
// priority order; if every candidate fails, an expired cache entry is
// returned with freshness "stale" before giving up.
func (e *Engine) Resolve(ctx context.Context, query sources.PriceQuery) (sources.PriceResult, error) {
	start := time.Now()

	q := query.Normalized()
	if err := sources.ValidateSubject(q.Subject); err != nil {
		return sources.PriceResult{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if q.QuoteCurrency == "" {
		q.QuoteCurrency = "usd"
	}

	key := q.CacheKey()

	if entry, ok := e.cache.Get(key); ok {
		metrics.RecordCacheEvent("hit")
		result := entry.Result
		result.Freshness = sources.FreshnessCached
		metrics.RecordResolve(string(q.DataClass), "cached", time.Since(start))
		return result, nil
	}
	metrics.RecordCacheEvent("miss")

	// Collapse concurrent identical queries into one upstream walk and
	// one cache write.
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.fetchLive(ctx, q, key)
	})
	if err != nil {
		if errors.Is(err, ErrAllSourcesUnavailable) {
			if entry, ok := e.cache.GetStale(key); ok {
				metrics.RecordCacheEvent("stale_hit")
				result := entry.Result
				result.Freshness = sources.FreshnessStale
				metrics.RecordResolve(string(q.DataClass), "stale", time.Since(start))
				e.logger.Warn("Serving stale price", "key", key, "observed_at", result.ObservedAt)
				return result, nil
			}
		}
		metrics.RecordResolve(string(q.DataClass), "error", time.Since(start))
		return sources.PriceResult{}, err
	}

	metrics.RecordResolve(string(q.DataClass), "live", time.Since(start))
	return v.(sources.PriceResult), nil
}

// fetchLive walks candidates in priority order and writes the first
// success to the cache.
func (e *Engine) fetchLive(ctx context.Context, q sources.PriceQuery, key string) (sources.PriceResult, error) {
	attempts := make([]Attempt, 0, len(e.candidates))
	eligible := 0

	for _, c := range e.candidates {
		if !c.desc.Supports(q.DataClass) {
			continue
		}
		eligible++

		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{SourceID: c.desc.ID, Reason: ctx.Err()})
			break
		}

		// Breaker gate: a suppressed source is skipped, not failed.
		if !e.breakers.Allow(c.desc.ID) {
			attempts = append(attempts, Attempt{SourceID: c.desc.ID, Reason: breaker.ErrCircuitOpen})
			continue
		}

		// Limiter gate: local throttling never counts against the
		// breaker. Allow may have admitted this call as the half-open
		// probe, so the slot must be handed back on a skip or the
		// breaker waits forever on a probe that never ran.
		if !e.limiter.TryAcquire(c.desc.ID) {
			e.breakers.CancelProbe(c.desc.ID)
			metrics.RecordRateLimitSkip(c.desc.ID)
			attempts = append(attempts, Attempt{SourceID: c.desc.ID, Reason: ratelimit.ErrRateLimitExceeded})
			continue
		}

		result, err := e.fetchOne(ctx, c.source, q)
		if err != nil {
			e.breakers.Record(c.desc.ID, false)
			attempts = append(attempts, Attempt{SourceID: c.desc.ID, Reason: err})
			e.logger.Warn("Source fetch failed",
				"source", c.desc.ID,
				"subject", q.Subject,
				"data_class", q.DataClass,
				"error", err)
			continue
		}

		e.breakers.Record(c.desc.ID, true)

		result.SourceID = c.desc.ID
		result.Freshness = sources.FreshnessLive
		if result.ObservedAt.IsZero() {
			result.ObservedAt = time.Now()
		}

		e.cache.Put(key, result, q.DataClass, e.TTLFor(q.DataClass))
		return result, nil
	}

	if eligible == 0 {
		return sources.PriceResult{}, fmt.Errorf("%w: %s", ErrNoCandidates, q.DataClass)
	}
	return sources.PriceResult{}, &AllSourcesUnavailableError{Key: key, Attempts: attempts}
}

// fetchOne calls a single adapter under the per-call timeout.
func (e *Engine) fetchOne(ctx context.Context, src sources.Source, q sources.PriceQuery) (sources.PriceResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	result, err := src.Fetch(fetchCtx, q)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordSourceFetch(src.Name(), "ok", elapsed)
		return result, nil
	case errors.Is(err, sources.ErrThrottled):
		metrics.RecordSourceFetch(src.Name(), "throttled", elapsed)
		return sources.PriceResult{}, err
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordSourceFetch(src.Name(), "timeout", elapsed)
		return sources.PriceResult{}, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	default:
		metrics.RecordSourceFetch(src.Name(), "error", elapsed)
		return sources.PriceResult{}, err
	}
}

// BatchResult pairs a query with its individual outcome.
type BatchResult struct {
	Query  sources.PriceQuery
	Result sources.PriceResult
	Err    error
}

// ResolveBatch resolves queries independently and concurrently, bounded
// by the configured concurrency limit. Partial success is allowed: one
// query's failure never aborts the others.
func (e *Engine) ResolveBatch(ctx context.Context, queries []sources.PriceQuery) []BatchResult {
	metrics.RecordBatch(len(queries))

	results := make([]BatchResult, len(queries))

	var g errgroup.Group
	g.SetLimit(e.batchConcurrency)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			result, err := e.Resolve(ctx, q)
			results[i] = BatchResult{Query: q, Result: result, Err: err}
			return nil
		})
	}

	// Errors are reported per item, never through the group.
	_ = g.Wait()

	return results
}
