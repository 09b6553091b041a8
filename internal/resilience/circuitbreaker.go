// Package resilience guards the remote AI gateway against flaky upstreams.
//
// [Retry] runs a call with bounded attempts and exponential backoff.
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops hammering an upstream that keeps failing. [Guard] composes both around
// each gateway capability so the response scheduler and HTTP handlers see a
// single hardened Gateway.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is open and the cooldown has not
// yet elapsed. Callers should treat it as a fast, terminal failure.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// BreakerState is the operating mode of a [CircuitBreaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls. Normal operation.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls immediately until the cooldown elapses.
	BreakerOpen

	// BreakerHalfOpen lets a few probe calls through to test recovery.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [CircuitBreaker]. Zero values
// get defaults on construction.
type BreakerConfig struct {
	// Name labels the breaker in log output, typically the capability it
	// protects ("transcribe", "complete", "synthesize").
	Name string

	// TripAfter is the number of consecutive failures before opening.
	// Default: 5.
	TripAfter int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// ProbeCount is how many successful probes close a half-open breaker; any
	// probe failure re-opens it. Default: 2.
	ProbeCount int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name      string
	tripAfter int
	cooldown  time.Duration
	probes    int

	mu          sync.Mutex
	state       BreakerState
	failStreak  int
	openedAt    time.Time
	probeCalls  int
	probeWins   int
}

// NewCircuitBreaker creates a breaker with the supplied configuration.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeCount <= 0 {
		cfg.ProbeCount = 2
	}
	return &CircuitBreaker{
		name:      cfg.Name,
		tripAfter: cfg.TripAfter,
		cooldown:  cfg.Cooldown,
		probes:    cfg.ProbeCount,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.probeCalls = 0
		cb.probeWins = 0
		slog.Info("circuit breaker probing upstream", "name", cb.name)

	case BreakerHalfOpen:
		if cb.probeCalls >= cb.probes {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == BreakerHalfOpen
	if probing {
		cb.probeCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(probing)
	} else {
		cb.onSuccess(probing)
	}
	return err
}

// onFailure updates state after a failed call. Caller holds cb.mu.
func (cb *CircuitBreaker) onFailure(probing bool) {
	if probing {
		// A failed probe re-opens immediately.
		cb.state = BreakerOpen
		cb.openedAt = time.Now()
		cb.failStreak = cb.tripAfter
		slog.Warn("circuit breaker re-opened", "name", cb.name)
		return
	}
	cb.failStreak++
	if cb.failStreak >= cb.tripAfter {
		cb.state = BreakerOpen
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.failStreak)
	}
}

// onSuccess updates state after a successful call. Caller holds cb.mu.
func (cb *CircuitBreaker) onSuccess(probing bool) {
	if probing {
		cb.probeWins++
		if cb.probeWins >= cb.probes {
			cb.state = BreakerClosed
			cb.failStreak = 0
			slog.Info("circuit breaker closed", "name", cb.name)
		}
		return
	}
	cb.failStreak = 0
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports half-open; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && time.Since(cb.openedAt) >= cb.cooldown {
		return BreakerHalfOpen
	}
	return cb.state
}
