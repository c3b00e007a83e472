package forum

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/domain"
)

func TestClampLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, maxPageSize, clampLimit(0))
	assert.Equal(t, maxPageSize, clampLimit(-5))
	assert.Equal(t, maxPageSize, clampLimit(500))
	assert.Equal(t, 25, clampLimit(25))
}

func TestHTTPErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		statusCode int
		wantNil    bool
		wantErr    error
	}{
		{"ok", 200, true, nil},
		{"rate limited", 429, false, apperr.ErrTransient},
		{"server error", 503, false, apperr.ErrTransient},
		{"not found", 404, false, apperr.ErrPermanent},
		{"forbidden", 403, false, apperr.ErrPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := httpErrorKind(tc.statusCode, nil)
			if tc.wantNil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr))
		})
	}
}

func TestCanonicalize_ClassifiesContentTypeAndEngagement(t *testing.T) {
	t.Parallel()

	post := canonicalize(
		"abc123", "a self post", "alice", "golang",
		"https://reddit.com/r/golang/comments/abc123/", "/r/golang/comments/abc123/",
		"body text", "", "", "self.golang",
		100, 10, 0.9, time.Now().Unix(),
		false, false, true,
	)

	assert.Equal(t, domain.ContentText, post.ContentType)
	assert.Equal(t, "alice", *post.Author)
	assert.InDelta(t, 0.1, post.EngagementRatio, 0.001)
}

func TestCanonicalize_NilAuthorWhenEmpty(t *testing.T) {
	t.Parallel()

	post := canonicalize(
		"abc124", "deleted post", "", "golang",
		"https://example.com/x", "/r/golang/comments/abc124/",
		"", "", "", "example.com",
		0, 0, 0, time.Now().Unix(),
		false, false, false,
	)

	assert.Nil(t, post.Author)
}

func TestMockClient_ListPosts_DeterministicAcrossCalls(t *testing.T) {
	t.Parallel()

	c1 := NewMockClient(42)
	c2 := NewMockClient(42)

	res1, err := c1.ListPosts(context.Background(), ListPostsRequest{Subreddit: "golang", Limit: 5})
	require.NoError(t, err)
	res2, err := c2.ListPosts(context.Background(), ListPostsRequest{Subreddit: "golang", Limit: 5})
	require.NoError(t, err)

	require.Len(t, res1.Posts, 5)
	require.Len(t, res2.Posts, 5)
	for i := range res1.Posts {
		assert.Equal(t, res1.Posts[i].ID, res2.Posts[i].ID)
		assert.Equal(t, res1.Posts[i].Score, res2.Posts[i].Score)
	}
}

func TestMockClient_ListPosts_NeverExhaustsPaginationOnItsOwn(t *testing.T) {
	t.Parallel()

	client := NewMockClient(1)
	res, err := client.ListPosts(context.Background(), ListPostsRequest{Subreddit: "golang", Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, res.NextCursor)

	res2, err := client.ListPosts(context.Background(), ListPostsRequest{Subreddit: "golang", Limit: 10, PageCursor: res.NextCursor})
	require.NoError(t, err)
	assert.NotEmpty(t, res2.NextCursor)
	assert.NotEqual(t, res.Posts[0].ID, res2.Posts[0].ID)
}

func TestMockClient_ListPosts_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	client := NewMockClient(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListPosts(ctx, ListPostsRequest{Subreddit: "golang", Limit: 1})
	require.Error(t, err)
}

func TestMockClient_GetUser_ReturnsPopulatedUser(t *testing.T) {
	t.Parallel()

	client := NewMockClient(1)
	user, err := client.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.ID)
}

func TestRetryTransient_StopsImmediatelyOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryTransient(context.Background(), func() error {
		calls++
		return apperr.Permanent(errors.New("not retryable"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTransient_RetriesTransientUpToLimit(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryTransient(context.Background(), func() error {
		calls++
		return apperr.Transient(errors.New("timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // 1 initial + 3 retries
}

func TestRetryTransient_SucceedsAfterTransientRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryTransient(context.Background(), func() error {
		calls++
		if calls < 2 {
			return apperr.Transient(errors.New("timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
