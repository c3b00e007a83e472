package session

import (
	"context"
	"time"

	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/eventbus"
	"github.com/redditpulse/scraper/internal/store"
)

// sessionReporter adapts one runtimeSession to scheduler.Reporter,
// coalescing progress publishes and enforcing the error budget from
// the rule that "errors > plan_len*3, or the circuit stays open longer
// than cool_down*5".
type sessionReporter struct {
	engine *Engine
	rt     *runtimeSession
}

func (r *sessionReporter) ReportBatch(entryIndex, observed int, cursor string) {
	rt := r.rt
	now := time.Now().UTC()

	rt.mu.Lock()
	if entryIndex >= 0 && entryIndex < len(rt.sess.Plan) {
		rt.sess.Plan[entryIndex].Observed = observed
		rt.sess.Plan[entryIndex].Cursor = cursor
	}
	rt.sess.Counters.Progress = rt.sess.ComputeProgress()
	rt.sess.LastHeartbeat = now

	shouldPublish := now.Sub(rt.lastPublish) >= coalesceInterval
	if shouldPublish {
		rt.lastPublish = now
	}
	sessionID := rt.sess.SessionID
	counters := rt.sess.Counters
	plan := append([]domain.PlanEntry(nil), rt.sess.Plan...)
	rt.mu.Unlock()

	// PostsScraped and UsersScraped are owned by the Store's atomic
	// json_set bumps in UpsertPosts/UpsertUsers, not derived here;
	// UpdateSession preserves them and hands back the row so the
	// in-memory copy stays in sync.
	updated, err := r.engine.store.UpdateSession(context.Background(), sessionID, store.SessionPatch{
		Counters:      &counters,
		Plan:          plan,
		LastHeartbeat: &now,
	})
	if err == nil {
		rt.mu.Lock()
		rt.sess.Counters.PostsScraped = updated.Counters.PostsScraped
		rt.sess.Counters.UsersScraped = updated.Counters.UsersScraped
		counters = rt.sess.Counters
		rt.mu.Unlock()
	}

	if shouldPublish {
		r.engine.bus.Publish(eventbus.Event{
			Type:      eventbus.EventProgress,
			SessionID: sessionID,
			Payload: map[string]any{
				"counters": counters,
			},
		})
	}
}

func (r *sessionReporter) ReportError(entryIndex int, err error) {
	rt := r.rt
	now := time.Now().UTC()
	msg := err.Error()

	rt.mu.Lock()
	rt.sess.Counters.Errors++
	rt.sess.LastHeartbeat = now
	budgetExceeded := rt.sess.Counters.Errors > len(rt.sess.Plan)*3
	alreadyFailed := rt.failed
	if budgetExceeded {
		rt.failed = true
	}
	rt.mu.Unlock()

	if budgetExceeded && !alreadyFailed {
		r.engine.finalize(context.Background(), rt, domain.StatusFailed, &msg)
		return
	}

	_, _ = r.engine.store.UpdateSession(context.Background(), rt.sess.SessionID, store.SessionPatch{
		LastHeartbeat: &now,
	})
}

func (r *sessionReporter) ShouldStop() bool {
	rt := r.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.sess.Status == domain.StatusStopping || rt.failed
}

func (r *sessionReporter) CircuitOpenTooLong() bool {
	openFor, isOpen := r.engine.forumBreaker.OpenSince()
	if !isOpen {
		return false
	}
	tooLong := openFor > r.engine.coolDown*5

	if tooLong {
		rt := r.rt
		rt.mu.Lock()
		alreadyFailed := rt.failed
		rt.failed = true
		rt.mu.Unlock()
		if !alreadyFailed {
			msg := "forum circuit open too long"
			r.engine.finalize(context.Background(), rt, domain.StatusFailed, &msg)
		}
	}
	return tooLong
}
