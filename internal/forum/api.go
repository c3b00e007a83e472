package forum

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"

	"github.com/redditpulse/scraper/internal/admission"
	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/domain"
)

// apiClient is the authenticated OAuth2 backend, grounded on
// qepting91-reddit-scraper/internal/collector/api_client.go.
type apiClient struct {
	client    *reddit.Client
	admission admission.Controller
	breaker   *circuit.Breaker
}

var _ Client = (*apiClient)(nil)

// NewAPIClient builds a Client authenticated with app credentials, paced
// by adm and protected by breaker.
func NewAPIClient(clientID, clientSecret, username, password, userAgent string, adm admission.Controller, breaker *circuit.Breaker) (Client, error) {
	creds := reddit.Credentials{ID: clientID, Secret: clientSecret, Username: username, Password: password}
	client, err := reddit.NewClient(creds, reddit.WithUserAgent(userAgent))
	if err != nil {
		return nil, apperr.Permanent(fmt.Errorf("forum: authenticated client init: %w", err))
	}
	return &apiClient{client: client, admission: adm, breaker: breaker}, nil
}

func (a *apiClient) ListPosts(ctx context.Context, req ListPostsRequest) (ListPostsResult, error) {
	limit := clampLimit(req.Limit)
	opts := &reddit.ListOptions{Limit: limit, After: req.PageCursor}

	var rawPosts []*reddit.Post
	err := retryTransient(ctx, func() error {
		if err := a.admission.Acquire(ctx); err != nil {
			return apperr.ErrCancelled
		}
		return a.breaker.Call(func() error {
			var fetchErr error
			var resp *reddit.Response
			switch req.Sort {
			case domain.SortNew:
				rawPosts, resp, fetchErr = a.client.Subreddit.NewPosts(ctx, req.Subreddit, opts)
			case domain.SortRising:
				rawPosts, resp, fetchErr = a.client.Subreddit.RisingPosts(ctx, req.Subreddit, opts)
			case domain.SortTop:
				rawPosts, resp, fetchErr = a.client.Subreddit.TopPosts(ctx, req.Subreddit, &reddit.ListPostOptions{
					ListOptions: *opts,
					Time:        string(req.TimeFilter),
				})
			default:
				rawPosts, resp, fetchErr = a.client.Subreddit.HotPosts(ctx, req.Subreddit, opts)
			}
			if fetchErr != nil {
				status := 0
				if resp != nil && resp.Response != nil {
					status = resp.Response.StatusCode
				}
				if kind := httpErrorKind(status, fetchErr); kind != nil {
					a.admission.RecordOutcome(classifyOutcome(kind))
					return kind
				}
				a.admission.RecordOutcome(admission.OutcomeError)
				return apperr.Transient(fetchErr)
			}
			a.admission.RecordOutcome(admission.OutcomeOK)
			return nil
		})
	})
	if err != nil {
		return ListPostsResult{}, err
	}

	result := ListPostsResult{Posts: make([]domain.Post, 0, len(rawPosts))}
	for _, p := range rawPosts {
		if p == nil {
			continue
		}
		host := hostOf(p.URL)
		result.Posts = append(result.Posts, canonicalize(
			p.FullID, p.Title, p.Author, req.Subreddit, p.URL, p.Permalink, p.Body,
			linkURLFor(p), p.LinkFlairText, host,
			p.Score, p.NumberOfComments, float64(p.UpvoteRatio), p.Created.Unix(),
			p.NSFW, p.Spoiler, p.IsSelfPost,
		))
	}
	if len(rawPosts) == limit {
		result.NextCursor = rawPosts[len(rawPosts)-1].FullID
	}
	return result, nil
}

func (a *apiClient) GetUser(ctx context.Context, username string) (*domain.User, error) {
	var raw *reddit.User
	err := retryTransient(ctx, func() error {
		if err := a.admission.Acquire(ctx); err != nil {
			return apperr.ErrCancelled
		}
		return a.breaker.Call(func() error {
			var fetchErr error
			var resp *reddit.Response
			raw, resp, fetchErr = a.client.User.Get(ctx, username)
			if fetchErr != nil {
				status := 0
				if resp != nil && resp.Response != nil {
					status = resp.Response.StatusCode
				}
				if status == 404 || status == 410 {
					return apperr.Permanent(apperr.ErrNotFound)
				}
				if kind := httpErrorKind(status, fetchErr); kind != nil {
					a.admission.RecordOutcome(classifyOutcome(kind))
					return kind
				}
				a.admission.RecordOutcome(admission.OutcomeError)
				return apperr.Transient(fetchErr)
			}
			a.admission.RecordOutcome(admission.OutcomeOK)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Username:     raw.Name,
		ID:           raw.ID,
		CreatedUTC:   raw.Created.Unix(),
		CommentKarma: raw.CommentKarma,
		LinkKarma:    raw.PostKarma,
		IsVerified:   raw.HasVerifiedEmail,
		HasPremium:   raw.IsGold,
		ScrapedAt:    time.Now().UTC(),
	}
	if raw.Subreddit != nil {
		user.ProfileDescription = raw.Subreddit.PublicDescription
	}
	return user, nil
}

func classifyOutcome(err error) admission.Outcome {
	if apperr.IsPermanent(err) {
		return admission.OutcomeError
	}
	return admission.OutcomeRateLimited
}

func linkURLFor(p *reddit.Post) string {
	if p.IsSelfPost {
		return ""
	}
	return p.URL
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
