// Package ratelimit bounds the outbound call rate per source with a
// token bucket. Buckets are independent: callers against different
// sources never contend.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded indicates that no token became available within
// the caller's wait budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Limiter holds one token bucket per source.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// New creates an empty limiter. Sources are added via Configure.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Configure installs a bucket for sourceID with the given requests per
// minute and burst capacity. Reconfiguring replaces the bucket.
func (l *Limiter) Configure(sourceID string, requestsPerMinute, burst int) {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}

	refill := rate.Limit(float64(requestsPerMinute) / 60.0)

	l.mu.Lock()
	l.buckets[sourceID] = rate.NewLimiter(refill, burst)
	l.mu.Unlock()
}

// TryAcquire takes one token for sourceID if available, without
// blocking. Unknown sources are not limited.
func (l *Limiter) TryAcquire(sourceID string) bool {
	bucket := l.bucket(sourceID)
	if bucket == nil {
		return true
	}
	return bucket.Allow()
}

// Acquire blocks until a token is available for sourceID or maxWait
// elapses, in which case it fails with ErrRateLimitExceeded.
func (l *Limiter) Acquire(ctx context.Context, sourceID string, maxWait time.Duration) error {
	bucket := l.bucket(sourceID)
	if bucket == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	if err := bucket.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrRateLimitExceeded, sourceID)
	}
	return nil
}

func (l *Limiter) bucket(sourceID string) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buckets[sourceID]
}
