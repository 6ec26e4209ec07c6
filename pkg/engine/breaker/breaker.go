// Package breaker implements a per-source circuit breaker. After a run
// of consecutive failures a source is suppressed until a recovery
// timeout elapses, then a single probe call decides whether it closes
// again. Each source's breaker is independent.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the source is currently suppressed.
var ErrCircuitOpen = errors.New("circuit open")

// State of a single breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	// DefaultFailureThreshold is the consecutive failure count that opens a breaker.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long a breaker stays open before probing.
	DefaultRecoveryTimeout = 60 * time.Second
)

// Config holds per-source breaker settings.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

type state struct {
	mu                  sync.Mutex
	current             State
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
	cfg                 Config
}

// Breakers tracks one breaker per source. Transitions are driven by
// Allow before a call and Record after it.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*state

	defaults Config
	now      func() time.Time
	onChange func(sourceID string, to State)
}

// Option configures Breakers.
type Option func(*Breakers)

// WithDefaults overrides the default breaker settings.
func WithDefaults(cfg Config) Option {
	return func(b *Breakers) { b.defaults = normalize(cfg) }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(b *Breakers) { b.now = now }
}

// WithTransitionHook installs a callback invoked on every state change,
// used for metrics.
func WithTransitionHook(hook func(sourceID string, to State)) Option {
	return func(b *Breakers) { b.onChange = hook }
}

// New creates an empty breaker set.
func New(opts ...Option) *Breakers {
	b := &Breakers{
		breakers: make(map[string]*state),
		defaults: Config{
			FailureThreshold: DefaultFailureThreshold,
			RecoveryTimeout:  DefaultRecoveryTimeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func normalize(cfg Config) Config {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return cfg
}

// Configure installs a breaker for sourceID with specific settings.
// Unconfigured sources get a breaker with defaults on first use.
func (b *Breakers) Configure(sourceID string, cfg Config) {
	b.mu.Lock()
	b.breakers[sourceID] = &state{current: StateClosed, cfg: normalize(cfg)}
	b.mu.Unlock()
}

func (b *Breakers) get(sourceID string) *state {
	b.mu.RLock()
	s, ok := b.breakers[sourceID]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok = b.breakers[sourceID]; ok {
		return s
	}
	s = &state{current: StateClosed, cfg: b.defaults}
	b.breakers[sourceID] = s
	return s
}

// Allow reports whether a call to sourceID may proceed. In the open
// state it returns false until the recovery timeout elapses, then
// transitions to half-open and admits exactly one probe.
func (b *Breakers) Allow(sourceID string) bool {
	s := b.get(sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.current {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(s.openedAt) < s.cfg.RecoveryTimeout {
			return false
		}
		s.current = StateHalfOpen
		s.probeInFlight = true
		b.notify(sourceID, StateHalfOpen)
		return true
	case StateHalfOpen:
		if s.probeInFlight {
			return false
		}
		s.probeInFlight = true
		return true
	}
	return false
}

// Record reports the outcome of a call to sourceID. A probe success
// closes the breaker and resets the failure count; a probe failure
// re-opens it with a fresh recovery window.
func (b *Breakers) Record(sourceID string, success bool) {
	s := b.get(sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.current {
	case StateClosed:
		if success {
			s.consecutiveFailures = 0
			return
		}
		s.consecutiveFailures++
		if s.consecutiveFailures >= s.cfg.FailureThreshold {
			s.current = StateOpen
			s.openedAt = b.now()
			b.notify(sourceID, StateOpen)
		}
	case StateHalfOpen:
		s.probeInFlight = false
		if success {
			s.current = StateClosed
			s.consecutiveFailures = 0
			b.notify(sourceID, StateClosed)
			return
		}
		s.current = StateOpen
		s.openedAt = b.now()
		b.notify(sourceID, StateOpen)
	case StateOpen:
		// A late result from a call admitted before opening; the
		// recovery window already governs re-entry.
	}
}

// CancelProbe releases the probe slot for sourceID without recording
// an outcome. Callers use it when a call admitted by Allow is skipped
// before reaching the source, so the next Allow can admit a fresh
// probe instead of waiting on one that never ran.
func (b *Breakers) CancelProbe(sourceID string) {
	s := b.get(sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == StateHalfOpen {
		s.probeInFlight = false
	}
}

// State returns the current state for sourceID.
func (b *Breakers) State(sourceID string) State {
	s := b.get(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ConsecutiveFailures returns the failure run length for sourceID.
func (b *Breakers) ConsecutiveFailures(sourceID string) int {
	s := b.get(sourceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

func (b *Breakers) notify(sourceID string, to State) {
	if b.onChange != nil {
		b.onChange(sourceID, to)
	}
}
