// Package circuit implements a per-endpoint failure-isolation state
// machine, expressed as an explicit transition table the same way a job
// state machine would be. No circuit-breaker library was available for
// this (see DESIGN.md), so this is a deliberate stdlib-only component.
package circuit

import (
	"sync"
	"time"

	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/domain"
)

// Config holds the breaker's fixed thresholds.
type Config struct {
	FailureThreshold  int
	CoolDown          time.Duration
	SuccessThreshold  int
}

// DefaultConfig returns the standard breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		SuccessThreshold: 2,
	}
}

var validTransitions = map[domain.CircuitState][]domain.CircuitState{
	domain.CircuitClosed:   {domain.CircuitOpen},
	domain.CircuitOpen:     {domain.CircuitHalfOpen},
	domain.CircuitHalfOpen: {domain.CircuitClosed, domain.CircuitOpen},
}

// ValidateTransition reports whether from->to is a legal circuit
// transition.
func ValidateTransition(from, to domain.CircuitState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Breaker guards calls to a single endpoint key.
type Breaker struct {
	mu                 sync.Mutex
	cfg                Config
	state              domain.CircuitState
	failureCount       int
	openedAt           time.Time
	halfOpenSuccesses  int
}

// New constructs a closed Breaker with cfg.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: domain.CircuitClosed}
}

// Allow reports whether a call may proceed, transitioning open->half_open
// once cool_down has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.CircuitClosed, domain.CircuitHalfOpen:
		return true
	case domain.CircuitOpen:
		if time.Since(b.openedAt) >= b.cfg.CoolDown {
			b.transition(domain.CircuitHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.CircuitClosed:
		b.failureCount = 0
	case domain.CircuitHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.transition(domain.CircuitClosed)
		}
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(domain.CircuitOpen)
		}
	case domain.CircuitHalfOpen:
		b.transition(domain.CircuitOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to domain.CircuitState) {
	if !ValidateTransition(b.state, to) {
		return
	}
	b.state = to
	switch to {
	case domain.CircuitOpen:
		b.openedAt = time.Now()
		b.halfOpenSuccesses = 0
	case domain.CircuitClosed:
		b.failureCount = 0
		b.halfOpenSuccesses = 0
	case domain.CircuitHalfOpen:
		b.halfOpenSuccesses = 0
	}
}

// OpenSince reports how long the breaker has been continuously open, used
// by the Session Engine's error-budget check (circuit open longer than
// cool_down*5).
func (b *Breaker) OpenSince() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != domain.CircuitOpen {
		return 0, false
	}
	return time.Since(b.openedAt), true
}

// Record returns a snapshot of the breaker's state as a
// domain.CircuitRecord (EndpointKey is left empty).
func (b *Breaker) Record() domain.CircuitRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := domain.CircuitRecord{
		State:             b.state,
		FailureCount:      b.failureCount,
		HalfOpenSuccesses: b.halfOpenSuccesses,
	}
	if b.state == domain.CircuitOpen {
		opened := b.openedAt
		rec.OpenedAt = &opened
	}
	return rec
}

// Call runs fn if the breaker allows it, recording the outcome. Returns
// apperr.ErrCircuitOpen (a Transient cause) without calling fn if the
// breaker is open.
func (b *Breaker) Call(fn func() error) error {
	if !b.Allow() {
		return apperr.Transient(apperr.ErrCircuitOpen)
	}
	err := fn()
	if err == nil {
		b.RecordSuccess()
		return nil
	}
	if apperr.IsPermanent(err) {
		// Permanent failures (4xx) count toward the failure threshold
		// exactly like outages, so a persistently rejected integration
		// still trips the breaker.
		b.RecordFailure()
		return err
	}
	b.RecordFailure()
	return err
}
