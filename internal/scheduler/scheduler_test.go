package scheduler_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/forum"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/scheduler"
	"github.com/redditpulse/scraper/internal/store"
)

// fakeReporter is a minimal in-memory scheduler.Reporter for tests that
// don't need the full Session Engine.
type fakeReporter struct {
	mu       sync.Mutex
	batches  []int
	errCount int
	stop     atomic.Bool
}

func (f *fakeReporter) ReportBatch(entryIndex, observed int, cursor string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, observed)
}

func (f *fakeReporter) ReportError(entryIndex int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errCount++
}

func (f *fakeReporter) ShouldStop() bool         { return f.stop.Load() }
func (f *fakeReporter) CircuitOpenTooLong() bool { return false }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{Path: filepath.Join(dir, "test.db")}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestScheduler_Run_MockClientReachesTargetCount(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	require.NoError(t, st.CreateSession(context.Background(), &domain.Session{
		SessionID:  "s1",
		Subreddits: []string{"golang"},
		StartTime:  time.Now().UTC(),
	}))

	breaker := circuit.New(circuit.DefaultConfig())
	sched := scheduler.New(forum.NewMockClient(1), nil, st, breaker, nil, circuit.DefaultConfig().CoolDown, logger.Noop())

	plan := []domain.PlanEntry{{Subreddit: "golang", TargetCount: 7}}
	reporter := &fakeReporter{}
	sched.Run(context.Background(), "s1", plan, scheduler.RunOptions{DrainTimeout: 5 * time.Second}, reporter)

	posts, total, err := st.QueryPosts(context.Background(), store.PostFilter{}, store.Page{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, posts, 7)
}

// countingClient tracks the maximum number of concurrent ListPosts calls
// observed, to verify worker bounding.
type countingClient struct {
	mu        sync.Mutex
	inFlight  int
	maxSeen   int
	latency   time.Duration
}

func (c *countingClient) ListPosts(ctx context.Context, req forum.ListPostsRequest) (forum.ListPostsResult, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxSeen {
		c.maxSeen = c.inFlight
	}
	c.mu.Unlock()

	time.Sleep(c.latency)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()

	return forum.ListPostsResult{}, nil
}

func (c *countingClient) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return &domain.User{Username: username}, nil
}

func TestScheduler_Run_BoundsConcurrencyToWorkerCount(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	require.NoError(t, st.CreateSession(context.Background(), &domain.Session{
		SessionID:  "s1",
		Subreddits: []string{"a", "b", "c", "d"},
		StartTime:  time.Now().UTC(),
	}))

	client := &countingClient{latency: 30 * time.Millisecond}
	breaker := circuit.New(circuit.DefaultConfig())
	sched := scheduler.New(client, nil, st, breaker, nil, circuit.DefaultConfig().CoolDown, logger.Noop())

	plan := []domain.PlanEntry{
		{Subreddit: "a", TargetCount: 1},
		{Subreddit: "b", TargetCount: 1},
		{Subreddit: "c", TargetCount: 1},
		{Subreddit: "d", TargetCount: 1},
	}
	reporter := &fakeReporter{}
	sched.Run(context.Background(), "s1", plan, scheduler.RunOptions{
		Parallel:     true,
		Workers:      2,
		DrainTimeout: 5 * time.Second,
	}, reporter)

	client.mu.Lock()
	maxSeen := client.maxSeen
	client.mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 2)
}

// permanentFailClient always returns a Permanent classification error.
type permanentFailClient struct{}

func (permanentFailClient) ListPosts(ctx context.Context, req forum.ListPostsRequest) (forum.ListPostsResult, error) {
	return forum.ListPostsResult{}, apperr.Permanent(errors.New("subreddit banned"))
}

func (permanentFailClient) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return nil, apperr.Permanent(apperr.ErrNotFound)
}

func TestScheduler_Run_PermanentErrorAdvancesPastEntry(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	require.NoError(t, st.CreateSession(context.Background(), &domain.Session{
		SessionID:  "s1",
		Subreddits: []string{"golang"},
		StartTime:  time.Now().UTC(),
	}))

	breaker := circuit.New(circuit.DefaultConfig())
	sched := scheduler.New(permanentFailClient{}, nil, st, breaker, nil, circuit.DefaultConfig().CoolDown, logger.Noop())

	plan := []domain.PlanEntry{{Subreddit: "golang", TargetCount: 5}}
	reporter := &fakeReporter{}

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background(), "s1", plan, scheduler.RunOptions{DrainTimeout: 2 * time.Second}, reporter)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return after a permanent error")
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	assert.Equal(t, 1, reporter.errCount)
}

func TestScheduler_Run_HonorsShouldStop(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	require.NoError(t, st.CreateSession(context.Background(), &domain.Session{
		SessionID:  "s1",
		Subreddits: []string{"golang"},
		StartTime:  time.Now().UTC(),
	}))

	breaker := circuit.New(circuit.DefaultConfig())
	sched := scheduler.New(forum.NewMockClient(1), nil, st, breaker, nil, circuit.DefaultConfig().CoolDown, logger.Noop())

	plan := []domain.PlanEntry{{Subreddit: "golang", TargetCount: 1_000_000}}
	reporter := &fakeReporter{}
	reporter.stop.Store(true)

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background(), "s1", plan, scheduler.RunOptions{DrainTimeout: time.Second}, reporter)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop promptly when ShouldStop is true")
	}
}
