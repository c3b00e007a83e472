package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{Path: filepath.Join(dir, "test.db")}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newSession(id string, target int) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		SessionID:     id,
		Subreddits:    []string{"golang"},
		Status:        domain.StatusRunning,
		Plan:          []domain.PlanEntry{{Subreddit: "golang", TargetCount: target}},
		StartTime:     now,
		LastHeartbeat: now,
	}
}

func TestStore_CreateAndGetSession(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	sess := newSession("sess-1", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	got, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, got.Status)
	require.Equal(t, []string{"golang"}, got.Subreddits)
}

func TestStore_UpsertPosts_PreservesEarliestScrapedAt(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-2", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	earlier := time.Now().UTC().Add(-time.Hour)
	later := time.Now().UTC()

	post := domain.Post{ID: "p1", Title: "first", Subreddit: "golang", URL: "https://x", Permalink: "/p1", ScrapedAt: later}
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-2"))

	post.Title = "updated"
	post.ScrapedAt = earlier
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-2"))

	posts, total, err := st.QueryPosts(ctx, store.PostFilter{}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, posts, 1)
	require.Equal(t, "updated", posts[0].Title)
	require.WithinDuration(t, earlier, posts[0].ScrapedAt, time.Second)
}

func TestStore_UpsertPosts_IsIdempotentAndBumpsCountersOnce(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-3", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	post := domain.Post{ID: "p1", Title: "a", Subreddit: "golang", URL: "https://x", Permalink: "/p1", ScrapedAt: time.Now().UTC()}
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-3"))
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-3"))

	got, err := st.GetSession(ctx, "sess-3")
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.PostsScraped)

	_, total, err := st.QueryPosts(ctx, store.PostFilter{}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestStore_UpsertPosts_PersistsEnrichmentAndAnalyticsFields(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-5", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	title := "enriched title"
	description := "enriched description"
	author := "enriched author"
	snippet := "enriched snippet"
	publishedAt := time.Now().UTC().Unix()
	sentiment := 0.42
	viral := 0.87

	post := domain.Post{
		ID: "p1", Title: "a", Subreddit: "golang", URL: "https://x", Permalink: "/p1",
		ScrapedAt:           time.Now().UTC(),
		EnrichedTitle:       &title,
		EnrichedDescription: &description,
		EnrichedAuthor:      &author,
		EnrichedSnippet:     &snippet,
		EnrichedPublishedAt: &publishedAt,
		SentimentScore:      &sentiment,
		ViralPotential:      &viral,
	}
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-5"))

	posts, _, err := st.QueryPosts(ctx, store.PostFilter{}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)

	got := posts[0]
	require.NotNil(t, got.EnrichedTitle)
	require.Equal(t, title, *got.EnrichedTitle)
	require.NotNil(t, got.EnrichedDescription)
	require.Equal(t, description, *got.EnrichedDescription)
	require.NotNil(t, got.EnrichedAuthor)
	require.Equal(t, author, *got.EnrichedAuthor)
	require.NotNil(t, got.EnrichedSnippet)
	require.Equal(t, snippet, *got.EnrichedSnippet)
	require.NotNil(t, got.EnrichedPublishedAt)
	require.Equal(t, publishedAt, *got.EnrichedPublishedAt)
	require.NotNil(t, got.SentimentScore)
	require.InDelta(t, sentiment, *got.SentimentScore, 0.0001)
	require.NotNil(t, got.ViralPotential)
	require.InDelta(t, viral, *got.ViralPotential, 0.0001)
}

func TestStore_UpsertPosts_UpdateOverwritesEnrichmentFields(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-6", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	post := domain.Post{ID: "p1", Title: "a", Subreddit: "golang", URL: "https://x", Permalink: "/p1", ScrapedAt: time.Now().UTC()}
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-6"))

	sentiment := -0.2
	post.SentimentScore = &sentiment
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-6"))

	posts, _, err := st.QueryPosts(ctx, store.PostFilter{}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].SentimentScore)
	require.InDelta(t, sentiment, *posts[0].SentimentScore, 0.0001)
}

func TestStore_QueryPosts_MinScoreZeroExcludesNegativeScores(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-7", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	posts := []domain.Post{
		{ID: "neg", Title: "negative", Subreddit: "golang", URL: "https://x", Permalink: "/neg", Score: -5, ScrapedAt: time.Now().UTC()},
		{ID: "zero", Title: "zero", Subreddit: "golang", URL: "https://x", Permalink: "/zero", Score: 0, ScrapedAt: time.Now().UTC()},
		{ID: "pos", Title: "positive", Subreddit: "golang", URL: "https://x", Permalink: "/pos", Score: 5, ScrapedAt: time.Now().UTC()},
	}
	require.NoError(t, st.UpsertPosts(ctx, posts, "sess-7"))

	zero := 0
	filtered, total, err := st.QueryPosts(ctx, store.PostFilter{MinScore: &zero}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	for _, p := range filtered {
		require.GreaterOrEqual(t, p.Score, 0)
	}

	unfiltered, total, err := st.QueryPosts(ctx, store.PostFilter{}, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	_ = unfiltered
}

func TestStore_UpdateSession_OnlyTouchesPatchedFields(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-4", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	stopping := domain.StatusStopping
	updated, err := st.UpdateSession(ctx, "sess-4", store.SessionPatch{Status: &stopping})
	require.NoError(t, err)
	require.Equal(t, domain.StatusStopping, updated.Status)

	got, err := st.GetSession(ctx, "sess-4")
	require.NoError(t, err)
	require.Equal(t, domain.StatusStopping, got.Status)
	require.Equal(t, []string{"golang"}, got.Subreddits)
}

func TestStore_UpdateSession_PreservesPostsScrapedFromAtomicBump(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	sess := newSession("sess-8", 10)
	require.NoError(t, st.CreateSession(ctx, sess))

	post := domain.Post{ID: "p1", Title: "a", Subreddit: "golang", URL: "https://x", Permalink: "/p1", ScrapedAt: time.Now().UTC()}
	require.NoError(t, st.UpsertPosts(ctx, []domain.Post{post}, "sess-8"))

	got, err := st.GetSession(ctx, "sess-8")
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.PostsScraped)

	staleCounters := domain.SessionCounters{PostsScraped: 999, UsersScraped: 42, Progress: 50}
	updated, err := st.UpdateSession(ctx, "sess-8", store.SessionPatch{Counters: &staleCounters})
	require.NoError(t, err)
	require.Equal(t, 1, updated.Counters.PostsScraped)
	require.Equal(t, 0, updated.Counters.UsersScraped)
	require.Equal(t, 50, updated.Counters.Progress)
}

func TestStore_ListSessions_FiltersByStatus(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, newSession("running-1", 5)))
	failed := newSession("failed-1", 5)
	failed.Status = domain.StatusFailed
	require.NoError(t, st.CreateSession(ctx, failed))

	running, err := st.ListSessions(ctx, store.SessionFilter{Status: domain.StatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "running-1", running[0].SessionID)
}

func TestStore_LoadActiveSessions_ReturnsOnlyInFlightStatuses(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	queued := newSession("queued-1", 5)
	queued.Status = domain.StatusQueued
	require.NoError(t, st.CreateSession(ctx, queued))

	completed := newSession("done-1", 5)
	completed.Status = domain.StatusCompleted
	require.NoError(t, st.CreateSession(ctx, completed))

	active, err := st.LoadActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "queued-1", active[0].SessionID)
}
