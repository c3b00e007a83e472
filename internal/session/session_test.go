package session_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/eventbus"
	"github.com/redditpulse/scraper/internal/forum"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/scheduler"
	"github.com/redditpulse/scraper/internal/session"
	"github.com/redditpulse/scraper/internal/store"
)

func newEngine(t *testing.T) *session.Engine {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{Path: filepath.Join(dir, "test.db")}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	breaker := circuit.New(circuit.DefaultConfig())
	sched := scheduler.New(forum.NewMockClient(1), nil, st, breaker, nil, circuit.DefaultConfig().CoolDown, logger.Noop())
	return session.New(sched, st, eventbus.New(), breaker, circuit.DefaultConfig().CoolDown, logger.Noop())
}

func waitForStatus(t *testing.T, eng *session.Engine, id string, want domain.SessionStatus, timeout time.Duration) domain.SessionView {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		view, err := eng.Status(context.Background(), id)
		require.NoError(t, err)
		if view.Status == want {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s did not reach status %s in time", id, want)
	return domain.SessionView{}
}

func TestEngine_Start_RejectsEmptySubreddits(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	_, err := eng.Start(context.Background(), session.StartConfig{})
	require.Error(t, err)
	var validationErr *session.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestEngine_Start_ZeroTargetCompletesImmediately(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	id, err := eng.Start(context.Background(), session.StartConfig{
		Subreddits:        []string{"golang"},
		PostsPerSubreddit: 0,
	})
	require.NoError(t, err)

	view := waitForStatus(t, eng, id, domain.StatusCompleted, time.Second)
	assert.Equal(t, 100, view.Counters.Progress)
}

func TestEngine_Start_RunsToCompletion(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	id, err := eng.Start(context.Background(), session.StartConfig{
		Subreddits:        []string{"golang", "programming"},
		PostsPerSubreddit: 5,
		MaxWorkers:        2,
		Parallel:          true,
	})
	require.NoError(t, err)

	view := waitForStatus(t, eng, id, domain.StatusCompleted, 5*time.Second)
	assert.Equal(t, 100, view.Counters.Progress)
	assert.Equal(t, 10, view.Counters.PostsScraped)
}

func TestEngine_Stop_TransitionsRunningSessionToCancelled(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	id, err := eng.Start(context.Background(), session.StartConfig{
		Subreddits:        []string{"golang"},
		PostsPerSubreddit: 1_000_000,
	})
	require.NoError(t, err)

	waitForStatus(t, eng, id, domain.StatusRunning, time.Second)

	status, err := eng.Stop(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopping, status)

	waitForStatus(t, eng, id, domain.StatusCancelled, 5*time.Second)
}

func TestEngine_Stop_IsIdempotentOnTerminalSessions(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	id, err := eng.Start(context.Background(), session.StartConfig{
		Subreddits:        []string{"golang"},
		PostsPerSubreddit: 0,
	})
	require.NoError(t, err)
	waitForStatus(t, eng, id, domain.StatusCompleted, time.Second)

	status, err := eng.Stop(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)
}

func TestEngine_LoadActive_RequeuesRunningSessionsFoundAtBoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	st, err := store.Open(store.Config{Path: dbPath}, logger.Noop())
	require.NoError(t, err)

	now := time.Now().UTC()
	stuck := &domain.Session{
		SessionID:     "stuck-1",
		Subreddits:    []string{"golang"},
		Status:        domain.StatusRunning,
		Plan:          []domain.PlanEntry{{Subreddit: "golang", TargetCount: 0}},
		StartTime:     now,
		LastHeartbeat: now,
	}
	require.NoError(t, st.CreateSession(context.Background(), stuck))
	require.NoError(t, st.Close())

	st2, err := store.Open(store.Config{Path: dbPath}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { st2.Close() })

	breaker := circuit.New(circuit.DefaultConfig())
	sched := scheduler.New(forum.NewMockClient(1), nil, st2, breaker, nil, circuit.DefaultConfig().CoolDown, logger.Noop())
	eng := session.New(sched, st2, eventbus.New(), breaker, circuit.DefaultConfig().CoolDown, logger.Noop())

	require.NoError(t, eng.LoadActive(context.Background()))

	waitForStatus(t, eng, "stuck-1", domain.StatusCompleted, time.Second)
}
