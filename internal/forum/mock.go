package forum

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redditpulse/scraper/internal/domain"
)

// mockClient generates deterministic synthetic posts for tests and local
// development without network access, grounded on
// qepting91-reddit-scraper/internal/collector/mock.go.
type mockClient struct {
	latency time.Duration
	rng     *rand.Rand
}

var _ Client = (*mockClient)(nil)

// NewMockClient builds a Client that synthesizes posts with a simulated
// fetch latency, seeded for reproducible test runs.
func NewMockClient(seed int64) Client {
	return &mockClient{latency: 50 * time.Millisecond, rng: rand.New(rand.NewSource(seed))}
}

func (m *mockClient) ListPosts(ctx context.Context, req ListPostsRequest) (ListPostsResult, error) {
	select {
	case <-ctx.Done():
		return ListPostsResult{}, ctx.Err()
	case <-time.After(m.latency):
	}

	limit := clampLimit(req.Limit)
	offset := 0
	if req.PageCursor != "" {
		offset, _ = strconv.Atoi(req.PageCursor)
	}

	posts := make([]domain.Post, 0, limit)
	for i := 0; i < limit; i++ {
		idx := offset + i
		id := fmt.Sprintf("mock_%s_%d", req.Subreddit, idx)
		score := 1 + m.rng.Intn(5000)
		numComments := m.rng.Intn(500)
		posts = append(posts, canonicalize(
			id,
			fmt.Sprintf("Synthetic post #%d in r/%s", idx, req.Subreddit),
			fmt.Sprintf("mock_user_%d", idx%37),
			req.Subreddit,
			fmt.Sprintf("https://example.invalid/%s/%d", req.Subreddit, idx),
			fmt.Sprintf("/r/%s/comments/%s/", req.Subreddit, id),
			"synthetic body text for local development",
			"",
			"",
			"self."+req.Subreddit,
			score,
			numComments,
			0.5+m.rng.Float64()*0.5,
			time.Now().Add(-time.Duration(idx)*time.Hour).Unix(),
			false, false, true,
		))
	}

	result := ListPostsResult{Posts: posts}
	if limit == clampLimit(req.Limit) {
		result.NextCursor = strconv.Itoa(offset + limit)
	}
	return result, nil
}

func (m *mockClient) GetUser(ctx context.Context, username string) (*domain.User, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.latency):
	}
	return &domain.User{
		Username:     username,
		ID:           fmt.Sprintf("mock_uid_%s", username),
		CreatedUTC:   time.Now().Add(-365 * 24 * time.Hour).Unix(),
		CommentKarma: m.rng.Intn(100000),
		LinkKarma:    m.rng.Intn(50000),
		ScrapedAt:    time.Now().UTC(),
	}, nil
}
