package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/eventbus"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/scheduler"
	"github.com/redditpulse/scraper/internal/store"
)

// coalesceInterval bounds progress publish rate to "at most 4
// publishes/second per session".
const coalesceInterval = 250 * time.Millisecond

// heartbeatTimeout is 3x the coalescing interval, matching the
// watchdog rule.
const heartbeatTimeout = 3 * coalesceInterval

const watchdogScanInterval = 1 * time.Second

// StartConfig is the caller-supplied scrape configuration, mirroring the
// Control API's POST /scrape/start body.
type StartConfig struct {
	Subreddits        []string
	PostsPerSubreddit int
	Sort              domain.Sort
	TimeFilter        domain.TimeFilter
	IncludeUsers      bool
	ExtractContent    bool
	Parallel          bool
	MaxWorkers        int
	MinScore          int
	MaxAgeDays        int
}

// ValidationError maps to HTTP 400 at the Control API boundary.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func newValidationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type runtimeSession struct {
	mu          sync.Mutex
	sess        *domain.Session
	cancel      context.CancelFunc
	lastPublish time.Time
	failed      bool
	drainTimeout time.Duration
}

// Engine owns every session row's mutation rights and drives the
// Scheduler per active session, keeping lifecycle/state-machine
// concerns separate from the Scheduler's worker-pool orchestration.
type Engine struct {
	store        *store.Store
	bus          *eventbus.Bus
	scheduler    *scheduler.Scheduler
	forumBreaker *circuit.Breaker
	coolDown     time.Duration
	log          logger.Interface

	mu       sync.RWMutex
	sessions map[string]*runtimeSession

	drainTimeout time.Duration
}

// New builds an Engine wired to its Scheduler, Store, Event Bus and the
// forum circuit breaker (needed for the error-budget check). Derived
// analytics (sentiment, category, viral potential) are scored inside the
// Scheduler, not the Engine, since the Engine never touches post content.
func New(sched *scheduler.Scheduler, st *store.Store, bus *eventbus.Bus, forumBreaker *circuit.Breaker, coolDown time.Duration, log logger.Interface) *Engine {
	return &Engine{
		store:        st,
		bus:          bus,
		scheduler:    sched,
		forumBreaker: forumBreaker,
		coolDown:     coolDown,
		log:          log,
		sessions:     make(map[string]*runtimeSession),
		drainTimeout: 30 * time.Second,
	}
}

// StartWatchdog launches the heartbeat watchdog goroutine; it runs until
// ctx is cancelled.
func (e *Engine) StartWatchdog(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(watchdogScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.checkHeartbeats(ctx)
			}
		}
	}()
}

func (e *Engine) checkHeartbeats(ctx context.Context) {
	e.mu.RLock()
	runtimes := make([]*runtimeSession, 0, len(e.sessions))
	for _, rt := range e.sessions {
		runtimes = append(runtimes, rt)
	}
	e.mu.RUnlock()

	for _, rt := range runtimes {
		rt.mu.Lock()
		stale := rt.sess.Status == domain.StatusRunning && time.Since(rt.sess.LastHeartbeat) > heartbeatTimeout
		rt.mu.Unlock()
		if stale {
			msg := "heartbeat timeout"
			e.finalize(ctx, rt, domain.StatusFailed, &msg)
		}
	}
}

// LoadActive restores sessions with status in
// {queued,running,stopping} on process start; any running session found
// at boot is transitioned to queued (heartbeat expired) and restarted.
func (e *Engine) LoadActive(ctx context.Context) error {
	active, err := e.store.LoadActiveSessions(ctx)
	if err != nil {
		return err
	}
	for i := range active {
		sess := active[i]
		if sess.Status == domain.StatusRunning || sess.Status == domain.StatusStopping {
			sess.Status = domain.StatusQueued
		}
		if _, err := e.store.UpdateSession(ctx, sess.SessionID, store.SessionPatch{Status: &sess.Status}); err != nil {
			e.log.Error("session: failed to requeue on boot", "session_id", sess.SessionID, "error", err)
			continue
		}
		rt := &runtimeSession{sess: &sess, drainTimeout: e.drainTimeout}
		e.mu.Lock()
		e.sessions[sess.SessionID] = rt
		e.mu.Unlock()
		go e.run(context.Background(), rt)
	}
	return nil
}

// Start validates cfg, persists a new queued session, and begins
// scheduling asynchronously.
func (e *Engine) Start(ctx context.Context, cfg StartConfig) (string, error) {
	if len(cfg.Subreddits) == 0 {
		return "", newValidationError("subreddits must not be empty")
	}
	if cfg.PostsPerSubreddit < 0 {
		return "", newValidationError("posts_per_subreddit must not be negative")
	}
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	now := time.Now().UTC()
	plan := make([]domain.PlanEntry, 0, len(cfg.Subreddits))
	for _, sub := range cfg.Subreddits {
		plan = append(plan, domain.PlanEntry{
			Subreddit:   sub,
			TargetCount: cfg.PostsPerSubreddit,
			Sort:        cfg.Sort,
			TimeFilter:  cfg.TimeFilter,
		})
	}

	sess := &domain.Session{
		SessionID:     uuid.NewString(),
		Subreddits:    cfg.Subreddits,
		Plan:          plan,
		Status:        domain.StatusQueued,
		StartTime:     now,
		LastHeartbeat: now,
		Options: domain.SessionOptions{
			Parallel:       cfg.Parallel,
			IncludeUsers:   cfg.IncludeUsers,
			ExtractContent: cfg.ExtractContent,
			Workers:        workers,
			Sort:           cfg.Sort,
			TimeFilter:     cfg.TimeFilter,
			MinScore:       cfg.MinScore,
			MaxAgeDays:     cfg.MaxAgeDays,
		},
	}

	if err := e.store.CreateSession(ctx, sess); err != nil {
		return "", err
	}

	rt := &runtimeSession{sess: sess, drainTimeout: e.drainTimeout}
	e.mu.Lock()
	e.sessions[sess.SessionID] = rt
	e.mu.Unlock()

	go e.run(context.Background(), rt)

	return sess.SessionID, nil
}

func (e *Engine) run(ctx context.Context, rt *runtimeSession) {
	runCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.cancel = cancel
	sessionID := rt.sess.SessionID
	totalTarget := rt.sess.TotalTarget()
	plan := append([]domain.PlanEntry(nil), rt.sess.Plan...)
	opts := rt.sess.Options
	rt.mu.Unlock()

	e.transition(runCtx, rt, domain.StatusRunning, nil)
	e.bus.Publish(eventbus.Event{Type: eventbus.EventSessionStarted, SessionID: sessionID})

	if totalTarget == 0 {
		// posts_per_subreddit = 0: complete immediately, progress -> 100.
		e.finalize(runCtx, rt, domain.StatusCompleted, nil)
		return
	}

	reporter := &sessionReporter{engine: e, rt: rt}
	runOpts := scheduler.RunOptions{
		Parallel:       opts.Parallel,
		Workers:        opts.Workers,
		ExtractContent: opts.ExtractContent,
		IncludeUsers:   opts.IncludeUsers,
		MinScore:       opts.MinScore,
		MaxAgeDays:     opts.MaxAgeDays,
		DrainTimeout:   rt.drainTimeout,
	}
	e.scheduler.Run(runCtx, sessionID, plan, runOpts, reporter)

	rt.mu.Lock()
	failed := rt.failed
	status := rt.sess.Status
	rt.mu.Unlock()

	switch {
	case failed:
		return // finalize already called by the reporter
	case status == domain.StatusStopping:
		e.finalize(runCtx, rt, domain.StatusCancelled, nil)
	default:
		e.finalize(runCtx, rt, domain.StatusCompleted, nil)
	}
}

// Stop requests a session stop; idempotent, a no-op on terminal sessions.
func (e *Engine) Stop(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	e.mu.RLock()
	rt, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		sess, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return sess.Status, nil
	}

	rt.mu.Lock()
	status := rt.sess.Status
	if IsTerminal(status) {
		rt.mu.Unlock()
		return status, nil
	}
	rt.sess.Status = domain.StatusStopping
	rt.mu.Unlock()

	if _, err := e.store.UpdateSession(ctx, sessionID, store.SessionPatch{Status: statusPtr(domain.StatusStopping)}); err != nil {
		return "", err
	}
	return domain.StatusStopping, nil
}

// Status returns the read-only SessionView for id.
func (e *Engine) Status(ctx context.Context, id string) (domain.SessionView, error) {
	e.mu.RLock()
	rt, ok := e.sessions[id]
	e.mu.RUnlock()
	if ok {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return rt.sess.View(), nil
	}
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.View(), nil
}

// List returns SessionViews matching filter.
func (e *Engine) List(ctx context.Context, filter store.SessionFilter) ([]domain.SessionView, error) {
	sessions, err := e.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]domain.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View())
	}
	return views, nil
}

// transition applies a validated status change, persists it, and updates
// the runtime's in-memory copy.
func (e *Engine) transition(ctx context.Context, rt *runtimeSession, to domain.SessionStatus, errMsg *string) {
	rt.mu.Lock()
	from := rt.sess.Status
	if err := ValidateTransition(from, to); err != nil {
		rt.mu.Unlock()
		e.log.Warn("session: rejected transition", "from", from, "to", to)
		return
	}
	rt.sess.Status = to
	if errMsg != nil {
		rt.sess.ErrorMessage = errMsg
	}
	rt.mu.Unlock()

	_, _ = e.store.UpdateSession(ctx, rt.sess.SessionID, store.SessionPatch{Status: statusPtr(to), ErrorMessage: errMsg})
}

// finalize transitions rt to a terminal status, sets end_time, persists,
// and publishes the corresponding lifecycle event.
func (e *Engine) finalize(ctx context.Context, rt *runtimeSession, to domain.SessionStatus, errMsg *string) {
	now := time.Now().UTC()
	rt.mu.Lock()
	from := rt.sess.Status
	if IsTerminal(from) {
		rt.mu.Unlock()
		return
	}
	if err := ValidateTransition(from, to); err != nil {
		// A watchdog-driven fail from "running" or an engine-driven fail
		// from "stopping" are both legal; anything else is a bug we log
		// and skip rather than corrupt the session row.
		rt.mu.Unlock()
		e.log.Warn("session: rejected terminal transition", "from", from, "to", to)
		return
	}
	rt.sess.Status = to
	rt.sess.EndTime = &now
	if to == domain.StatusCompleted {
		rt.sess.Counters.Progress = 100
	}
	if errMsg != nil {
		rt.sess.ErrorMessage = errMsg
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	sessionID := rt.sess.SessionID
	counters := rt.sess.Counters
	plan := rt.sess.Plan
	rt.mu.Unlock()

	_, _ = e.store.UpdateSession(ctx, sessionID, store.SessionPatch{
		Status:       statusPtr(to),
		Counters:     &counters,
		Plan:         plan,
		EndTime:      &now,
		ErrorMessage: errMsg,
	})

	eventType := eventbus.EventSessionCompleted
	if to == domain.StatusFailed {
		eventType = eventbus.EventSessionFailed
	}
	payload := map[string]any{"status": string(to)}
	if errMsg != nil {
		payload["error_message"] = *errMsg
	}
	e.bus.Publish(eventbus.Event{Type: eventType, SessionID: sessionID, Payload: payload})

	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

func statusPtr(s domain.SessionStatus) *domain.SessionStatus { return &s }
