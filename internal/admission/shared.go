package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sharedState is the JSON blob persisted in Redis so a fleet of worker
// processes observe one pacing line, using a load/compute/save shape.
type sharedState struct {
	LastGrant time.Time `json:"last_grant"`
	Rate      float64   `json:"rate"`
	Window    []Outcome `json:"window"`
}

// SharedAdmission implements the same Acquire/RecordOutcome contract as
// LocalAdmission but keeps its last-grant timestamp and outcome window in
// Redis, so multiple processes sharing one store file observe one pacing
// line (the "process-safe admission variant").
type SharedAdmission struct {
	client  *redis.Client
	key     string
	minRate float64
	maxRate float64
}

var _ Controller = (*SharedAdmission)(nil)

// NewShared builds a SharedAdmission keyed by domain, backed by the given
// redis client.
func NewShared(client *redis.Client, domain string, initialRate, minRate, maxRate float64) (*SharedAdmission, error) {
	s := &SharedAdmission{
		client:  client,
		key:     fmt.Sprintf("redditpulse:admission:%s", domain),
		minRate: minRate,
		maxRate: maxRate,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.initIfAbsent(ctx, initialRate); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SharedAdmission) initIfAbsent(ctx context.Context, initialRate float64) error {
	state := sharedState{LastGrant: time.Time{}, Rate: initialRate}
	buf, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, s.key, buf, 0).Err()
}

func (s *SharedAdmission) load(ctx context.Context) (sharedState, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		return sharedState{}, err
	}
	var state sharedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return sharedState{}, err
	}
	return state, nil
}

func (s *SharedAdmission) save(ctx context.Context, state sharedState) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, buf, 0).Err()
}

// Acquire polls the shared last-grant timestamp until min_interval has
// elapsed, honoring ctx cancellation without consuming the slot.
func (s *SharedAdmission) Acquire(ctx context.Context) error {
	for {
		state, err := s.load(ctx)
		if err != nil {
			return err
		}
		interval := time.Duration(float64(time.Second) / state.Rate)
		wait := time.Until(state.LastGrant.Add(interval))
		if wait <= 0 {
			state.LastGrant = time.Now().UTC()
			if err := s.save(ctx, state); err != nil {
				return err
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RecordOutcome loads the shared window, appends the outcome, recomputes
// the rate per the same adaptive policy as LocalAdmission, and saves.
func (s *SharedAdmission) RecordOutcome(o Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := s.load(ctx)
	if err != nil {
		return
	}
	state.Window = append(state.Window, o)
	if len(state.Window) > defaultWindow {
		state.Window = state.Window[len(state.Window)-defaultWindow:]
	}

	errCount := 0
	for _, w := range state.Window {
		if w == OutcomeError || w == OutcomeRateLimited {
			errCount++
		}
	}
	errRate := float64(errCount) / float64(len(state.Window))
	switch {
	case errRate > 0.30:
		state.Rate *= 0.5
	case errRate < 0.05 && state.Rate < s.maxRate:
		state.Rate *= 1.1
	}
	if state.Rate < s.minRate {
		state.Rate = s.minRate
	}
	if state.Rate > s.maxRate {
		state.Rate = s.maxRate
	}
	_ = s.save(ctx, state)
}

// Rate returns the controller's current shared grant rate.
func (s *SharedAdmission) Rate() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := s.load(ctx)
	if err != nil {
		return 0
	}
	return state.Rate
}
