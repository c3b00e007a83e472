// Package forum wraps the remote JSON API behind a uniform
// fetch/retry/timeout contract, parsing raw records into canonical
// domain.Post / domain.User values. Three interchangeable backends sit
// behind the Client interface, selected by config, using an
// api/public/mock collector factory shape
// (qepting91-reddit-scraper/internal/collector/factory.go).
package forum

import (
	"context"
	"time"

	"github.com/redditpulse/scraper/internal/domain"
)

// Client is the Forum Client's contract. The api and public backends
// compose Admission -> Circuit -> HTTP -> parse; the mock backend
// synthesizes posts locally and uses neither admission nor circuit.
type Client interface {
	ListPosts(ctx context.Context, req ListPostsRequest) (ListPostsResult, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
}

// ListPostsRequest names one page of one plan entry's fetch.
type ListPostsRequest struct {
	Subreddit  string
	Sort       domain.Sort
	TimeFilter domain.TimeFilter
	Limit      int // <= 100
	PageCursor string
}

// ListPostsResult is one page of canonical posts plus the opaque cursor
// for the next page, empty when exhausted.
type ListPostsResult struct {
	Posts      []domain.Post
	NextCursor string
}

const maxPageSize = 100

// clampLimit enforces the <=100 items/page contract.
func clampLimit(limit int) int {
	if limit <= 0 {
		return maxPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// canonicalize maps a raw record's fields into a domain.Post, applying
// the content_type classification rule shared by every backend.
func canonicalize(id, title, author, subreddit, url, permalink, selftext, linkURL, flair, domainHost string,
	score, numComments int, upvoteRatio float64, createdUTC int64, isNSFW, isSpoiler, isSelf bool) domain.Post {

	p := domain.Post{
		ID:          id,
		Title:       title,
		Subreddit:   subreddit,
		Score:       score,
		UpvoteRatio: upvoteRatio,
		NumComments: numComments,
		CreatedUTC:  createdUTC,
		URL:         url,
		Permalink:   permalink,
		Selftext:    selftext,
		IsNSFW:      isNSFW,
		IsSpoiler:   isSpoiler,
		IsSelf:      isSelf,
		Domain:      domainHost,
		ScrapedAt:   time.Now().UTC(),
	}
	if author != "" {
		p.Author = &author
	}
	if linkURL != "" {
		p.LinkURL = &linkURL
	}
	if flair != "" {
		p.Flair = &flair
	}
	p.ContentType = domain.ClassifyContentType(isSelf, domainHost, url)
	p.EngagementRatio = domain.EngagementRatioOf(score, numComments)
	return p
}
