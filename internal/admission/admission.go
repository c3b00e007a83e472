// Package admission paces outbound calls per domain and adapts its pace to
// observed error rate, using a
// hash-tracker "load state, compute, save state" idiom and on
// golang.org/x/time/rate for the token-bucket primitive itself.
package admission

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Outcome classifies one admitted call's result for the adaptive policy.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeError
)

// Controller is the shared contract for Local and Shared admission
// variants.
type Controller interface {
	// Acquire blocks until a slot is available or ctx is cancelled. If
	// ctx is cancelled first, the token is not consumed.
	Acquire(ctx context.Context) error
	// RecordOutcome feeds one call's result into the adaptive policy.
	RecordOutcome(o Outcome)
	// Rate returns the controller's current grant rate, for tests and
	// the /stats endpoint.
	Rate() float64
}

const (
	defaultWindow = 100
)

// adaptivePolicy implements a rolling-window multiplicative
// adjustment: error-rate > 0.30 halves the rate (floor minRate);
// error-rate < 0.05 increases it 10% (ceiling maxRate).
type adaptivePolicy struct {
	mu      sync.Mutex
	window  []Outcome
	minRate float64
	maxRate float64
}

func newAdaptivePolicy(minRate, maxRate float64) *adaptivePolicy {
	return &adaptivePolicy{minRate: minRate, maxRate: maxRate}
}

func (p *adaptivePolicy) record(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = append(p.window, o)
	if len(p.window) > defaultWindow {
		p.window = p.window[len(p.window)-defaultWindow:]
	}
}

// nextRate returns the adjusted rate given the current one, or the
// current rate unchanged if the window is still empty.
func (p *adaptivePolicy) nextRate(current float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.window) == 0 {
		return current
	}
	errCount := 0
	for _, o := range p.window {
		if o == OutcomeError || o == OutcomeRateLimited {
			errCount++
		}
	}
	errRate := float64(errCount) / float64(len(p.window))

	next := current
	switch {
	case errRate > 0.30:
		next = current * 0.5
	case errRate < 0.05 && current < p.maxRate:
		next = current * 1.1
	}
	if next < p.minRate {
		next = p.minRate
	}
	if next > p.maxRate {
		next = p.maxRate
	}
	return next
}

// LocalAdmission paces calls in-process with a mutex-guarded token bucket,
// retuned by the adaptive policy after every recorded outcome.
type LocalAdmission struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current float64
	policy  *adaptivePolicy
}

var _ Controller = (*LocalAdmission)(nil)

// NewLocal builds a LocalAdmission starting at initialRate, bounded to
// [minRate, maxRate].
func NewLocal(initialRate, minRate, maxRate float64) *LocalAdmission {
	return &LocalAdmission{
		limiter: rate.NewLimiter(rate.Limit(initialRate), 1),
		current: initialRate,
		policy:  newAdaptivePolicy(minRate, maxRate),
	}
}

func (l *LocalAdmission) Acquire(ctx context.Context) error {
	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()
	return lim.Wait(ctx)
}

func (l *LocalAdmission) RecordOutcome(o Outcome) {
	l.policy.record(o)
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.policy.nextRate(l.current)
	if next != l.current {
		l.current = next
		l.limiter.SetLimit(rate.Limit(next))
	}
}

func (l *LocalAdmission) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// WaitDuration reports how long Acquire would currently block for one
// reservation, without consuming it — used only by tests asserting rate
// compliance.
func (l *LocalAdmission) WaitDuration() time.Duration {
	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()
	r := lim.Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}
