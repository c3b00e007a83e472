package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/redditpulse/scraper/internal/admission"
	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/domain"
)

// publicClient hits the unauthenticated JSON endpoints directly, for
// environments without app credentials, grounded on
// qepting91-reddit-scraper/internal/collector/public_client.go.
type publicClient struct {
	httpClient *http.Client
	userAgent  string
	admission  admission.Controller
	breaker    *circuit.Breaker
}

var _ Client = (*publicClient)(nil)

// NewPublicClient builds a Client against https://www.reddit.com's public
// JSON endpoints.
func NewPublicClient(userAgent string, adm admission.Controller, breaker *circuit.Breaker) Client {
	return &publicClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		admission:  adm,
		breaker:    breaker,
	}
}

// redditJSONResponse mirrors the raw listing envelope Reddit's public
// JSON endpoints return.
type redditJSONResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				Name             string  `json:"name"`
				Title            string  `json:"title"`
				Author           string  `json:"author"`
				URL              string  `json:"url"`
				Permalink        string  `json:"permalink"`
				Selftext         string  `json:"selftext"`
				Domain           string  `json:"domain"`
				LinkFlairText    string  `json:"link_flair_text"`
				Score            int     `json:"score"`
				UpvoteRatio      float64 `json:"upvote_ratio"`
				NumComments      int     `json:"num_comments"`
				CreatedUTC       float64 `json:"created_utc"`
				Over18           bool    `json:"over_18"`
				Spoiler          bool    `json:"spoiler"`
				IsSelf           bool    `json:"is_self"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditUserJSON struct {
	Data struct {
		Name          string  `json:"name"`
		ID            string  `json:"id"`
		CreatedUTC    float64 `json:"created_utc"`
		CommentKarma  int     `json:"comment_karma"`
		LinkKarma     int     `json:"link_karma"`
		VerifiedEmail bool    `json:"has_verified_email"`
		IsGold        bool    `json:"is_gold"`
		Subreddit     struct {
			PublicDescription string `json:"public_description"`
		} `json:"subreddit"`
	} `json:"data"`
}

func (p *publicClient) ListPosts(ctx context.Context, req ListPostsRequest) (ListPostsResult, error) {
	limit := clampLimit(req.Limit)
	sort := string(req.Sort)
	if sort == "" {
		sort = "hot"
	}
	reqURL := fmt.Sprintf("https://www.reddit.com/r/%s/%s.json?limit=%d", url.PathEscape(req.Subreddit), sort, limit)
	if req.PageCursor != "" {
		reqURL += "&after=" + url.QueryEscape(req.PageCursor)
	}
	if sort == string(domain.SortTop) && req.TimeFilter != "" {
		reqURL += "&t=" + url.QueryEscape(string(req.TimeFilter))
	}

	var body []byte
	err := retryTransient(ctx, func() error {
		if err := p.admission.Acquire(ctx); err != nil {
			return apperr.ErrCancelled
		}
		return p.breaker.Call(func() error {
			b, status, err := p.fetch(ctx, reqURL)
			if err != nil {
				p.admission.RecordOutcome(admission.OutcomeError)
				return apperr.Transient(err)
			}
			if kind := httpErrorKind(status, nil); kind != nil {
				p.admission.RecordOutcome(classifyOutcome(kind))
				return kind
			}
			p.admission.RecordOutcome(admission.OutcomeOK)
			body = b
			return nil
		})
	})
	if err != nil {
		return ListPostsResult{}, err
	}

	var parsed redditJSONResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ListPostsResult{}, apperr.Skipped(fmt.Errorf("forum: public listing parse: %w", err))
	}

	result := ListPostsResult{Posts: make([]domain.Post, 0, len(parsed.Data.Children)), NextCursor: parsed.Data.After}
	for _, child := range parsed.Data.Children {
		d := child.Data
		result.Posts = append(result.Posts, canonicalize(
			d.Name, d.Title, d.Author, req.Subreddit, d.URL, d.Permalink, d.Selftext,
			linkURLForPublic(d.IsSelf, d.URL), d.LinkFlairText, d.Domain,
			d.Score, d.NumComments, d.UpvoteRatio, int64(d.CreatedUTC),
			d.Over18, d.Spoiler, d.IsSelf,
		))
	}
	return result, nil
}

func (p *publicClient) GetUser(ctx context.Context, username string) (*domain.User, error) {
	reqURL := fmt.Sprintf("https://www.reddit.com/user/%s/about.json", url.PathEscape(username))

	var body []byte
	var lastStatus int
	err := retryTransient(ctx, func() error {
		if err := p.admission.Acquire(ctx); err != nil {
			return apperr.ErrCancelled
		}
		return p.breaker.Call(func() error {
			b, status, err := p.fetch(ctx, reqURL)
			lastStatus = status
			if err != nil {
				p.admission.RecordOutcome(admission.OutcomeError)
				return apperr.Transient(err)
			}
			if status == 404 {
				return apperr.Permanent(apperr.ErrNotFound)
			}
			if kind := httpErrorKind(status, nil); kind != nil {
				p.admission.RecordOutcome(classifyOutcome(kind))
				return kind
			}
			p.admission.RecordOutcome(admission.OutcomeOK)
			body = b
			return nil
		})
	})
	if err != nil {
		if lastStatus == 404 {
			return nil, apperr.Permanent(apperr.ErrNotFound)
		}
		return nil, err
	}

	var parsed redditUserJSON
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Skipped(fmt.Errorf("forum: public user parse: %w", err))
	}
	return &domain.User{
		Username:           parsed.Data.Name,
		ID:                 parsed.Data.ID,
		CreatedUTC:          int64(parsed.Data.CreatedUTC),
		CommentKarma:        parsed.Data.CommentKarma,
		LinkKarma:           parsed.Data.LinkKarma,
		IsVerified:          parsed.Data.VerifiedEmail,
		HasPremium:          parsed.Data.IsGold,
		ProfileDescription:  parsed.Data.Subreddit.PublicDescription,
	}, nil
}

func (p *publicClient) fetch(ctx context.Context, reqURL string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func linkURLForPublic(isSelf bool, rawURL string) string {
	if isSelf {
		return ""
	}
	return rawURL
}
