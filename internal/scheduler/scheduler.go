// Package scheduler fans a session's plan across a worker pool with
// shared admission control and circuit breaking, aggregating progress
// and isolating per-worker errors, using a claim/process/retry loop
// generalized from URL frontier claims to plan-entry fetch pages.
package scheduler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/redditpulse/scraper/internal/analytics"
	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/enrich"
	"github.com/redditpulse/scraper/internal/forum"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/store"
)

// Reporter is how the Scheduler reports observations back to the Session
// Engine, which alone holds mutation rights over the session row.
type Reporter interface {
	// ReportBatch is called after each successful batch commit with the
	// plan entry's new cumulative observed count and page cursor.
	ReportBatch(entryIndex, observed int, cursor string)
	// ReportError records a worker error against the session's error
	// budget.
	ReportError(entryIndex int, err error)
	// ShouldStop reports whether the session has transitioned to
	// stopping; workers exit their loop between batches when true.
	ShouldStop() bool
	// CircuitOpenTooLong reports whether the forum circuit has been open
	// longer than the error-budget threshold (cool_down * 5).
	CircuitOpenTooLong() bool
}

// RunOptions carries the per-session knobs the Scheduler needs beyond
// the plan itself.
type RunOptions struct {
	Parallel       bool
	Workers        int
	ExtractContent bool
	IncludeUsers   bool
	MinScore       int
	MaxAgeDays     int
	DrainTimeout   time.Duration
}

// Scheduler executes one session's plan against shared backends.
type Scheduler struct {
	forumClient  forum.Client
	enricher     *enrich.Enricher
	store        *store.Store
	forumBreaker *circuit.Breaker
	scorer       analytics.Scorer
	coolDown     time.Duration
	log          logger.Interface
}

// New builds a Scheduler over the given backends. scorer may be nil, in
// which case posts are stored without derived analytics fields.
func New(forumClient forum.Client, enricher *enrich.Enricher, st *store.Store, forumBreaker *circuit.Breaker, scorer analytics.Scorer, coolDown time.Duration, log logger.Interface) *Scheduler {
	return &Scheduler{
		forumClient:  forumClient,
		enricher:     enricher,
		store:        st,
		forumBreaker: forumBreaker,
		scorer:       scorer,
		coolDown:     coolDown,
		log:          log,
	}
}

const (
	maxWorkerRetries  = 5
	batchSize         = 100
	workerBackoffBase = 1 * time.Second
	workerBackoffCap  = 30 * time.Second
)

// Run fans plan across a worker pool sized min(len(plan), opts.Workers)
// when opts.Parallel, else a single worker. Blocks until every entry is
// exhausted, ShouldStop returns true and drains, or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, sessionID string, plan []domain.PlanEntry, opts RunOptions, reporter Reporter) {
	if len(plan) == 0 {
		return
	}

	workerCount := 1
	if opts.Parallel {
		workerCount = opts.Workers
		if workerCount > len(plan) {
			workerCount = len(plan)
		}
		if workerCount < 1 {
			workerCount = 1
		}
	}

	entries := make(chan int, len(plan))
	for i, entry := range plan {
		if entry.Observed < entry.TargetCount {
			entries <- i
		}
	}
	close(entries)

	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}

	p := newPool(workerCount)
	p.run(ctx, drainTimeout, func(ctx context.Context, workerID int) {
		for entryIndex := range entries {
			if reporter.ShouldStop() {
				return
			}
			s.runEntry(ctx, sessionID, plan[entryIndex], entryIndex, opts, reporter)
			if reporter.ShouldStop() {
				return
			}
		}
	})
}

// runEntry drives one plan entry to its target_count: fetch, filter,
// enrich, score, persist, repeat until the target is met or the entry
// is exhausted.
func (s *Scheduler) runEntry(ctx context.Context, sessionID string, entry domain.PlanEntry, entryIndex int, opts RunOptions, reporter Reporter) {
	observed := entry.Observed
	cursor := entry.Cursor
	retries := 0

	for observed < entry.TargetCount {
		if reporter.ShouldStop() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		limit := entry.TargetCount - observed
		result, err := s.forumClient.ListPosts(ctx, forum.ListPostsRequest{
			Subreddit:  entry.Subreddit,
			Sort:       entry.Sort,
			TimeFilter: entry.TimeFilter,
			Limit:      minInt(limit, batchSize),
			PageCursor: cursor,
		})
		if err != nil {
			if apperr.IsTransient(err) {
				if isCircuitOpen(err) {
					// Sleeping cool_down/2 does not count against the
					// worker retry budget.
					sleepOrDone(ctx, s.coolDown/2)
					if reporter.CircuitOpenTooLong() {
						reporter.ReportError(entryIndex, err)
						return
					}
					continue
				}
				retries++
				if retries > maxWorkerRetries {
					reporter.ReportError(entryIndex, err)
					return
				}
				backoff := time.Duration(float64(workerBackoffBase) * math.Pow(1.5, float64(retries)))
				if backoff > workerBackoffCap {
					backoff = workerBackoffCap
				}
				sleepOrDone(ctx, backoff)
				continue
			}
			// Permanent: advance to next entry, not fatal.
			reporter.ReportError(entryIndex, err)
			return
		}
		retries = 0

		filtered := filterPosts(result.Posts, opts.MinScore, opts.MaxAgeDays)
		if len(filtered) > entry.TargetCount-observed {
			filtered = filtered[:entry.TargetCount-observed]
		}

		if opts.ExtractContent && s.enricher != nil {
			s.enrichBatch(ctx, filtered)
		}

		if s.scorer != nil {
			filtered = s.scorer.Score(filtered)
		}

		if len(filtered) > 0 {
			if err := s.store.UpsertPosts(ctx, filtered, sessionID); err != nil {
				reporter.ReportError(entryIndex, err)
				if !apperr.IsTransient(err) {
					return
				}
				// Nothing was committed: refetch the same page instead
				// of counting it as observed.
				continue
			}
			observed += len(filtered)
		}

		if opts.IncludeUsers {
			s.upsertAuthors(ctx, sessionID, filtered)
		}

		cursor = result.NextCursor
		reporter.ReportBatch(entryIndex, observed, cursor)

		if cursor == "" {
			return // exhausted upstream pagination before hitting target
		}
	}
}

func (s *Scheduler) enrichBatch(ctx context.Context, posts []domain.Post) {
	for i := range posts {
		if posts[i].LinkURL == nil || *posts[i].LinkURL == "" {
			continue
		}
		res, err := s.enricher.Enrich(ctx, *posts[i].LinkURL)
		if err != nil {
			continue // enrichment failure is never fatal to the post
		}
		if res.Title != "" {
			posts[i].EnrichedTitle = &res.Title
		}
		if res.Description != "" {
			posts[i].EnrichedDescription = &res.Description
		}
		if res.Author != "" {
			posts[i].EnrichedAuthor = &res.Author
		}
		if res.Snippet != "" {
			posts[i].EnrichedSnippet = &res.Snippet
		}
	}
}

func (s *Scheduler) upsertAuthors(ctx context.Context, sessionID string, posts []domain.Post) {
	users := make([]domain.User, 0, len(posts))
	seen := make(map[string]bool)
	for _, p := range posts {
		if p.Author == nil || *p.Author == "" || seen[*p.Author] {
			continue
		}
		seen[*p.Author] = true
		user, err := s.forumClient.GetUser(ctx, *p.Author)
		if err != nil {
			continue // per-user lookup failure is not fatal to the batch
		}
		users = append(users, *user)
	}
	if len(users) > 0 {
		_ = s.store.UpsertUsers(ctx, users, sessionID)
	}
}

// filterPosts applies NSFW/deleted/min_score/max_age filters before
// counting toward the target.
func filterPosts(posts []domain.Post, minScore, maxAgeDays int) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	cutoff := int64(0)
	if maxAgeDays > 0 {
		cutoff = time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	}
	for _, p := range posts {
		if p.IsNSFW {
			continue
		}
		if p.Author == nil || *p.Author == "[deleted]" {
			continue
		}
		if p.Score < minScore {
			continue
		}
		if cutoff > 0 && p.CreatedUTC < cutoff {
			continue
		}
		out = append(out, p)
	}
	return out
}

func isCircuitOpen(err error) bool {
	return errors.Is(err, apperr.ErrCircuitOpen)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
