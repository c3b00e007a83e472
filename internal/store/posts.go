package store

import (
	"context"
	"time"

	"github.com/redditpulse/scraper/internal/domain"
)

const defaultBatchSize = 100

// UpsertPosts inserts or updates posts, preserving the earliest
// scraped_at seen for each, and bumps the owning session's counters
// atomically in the same transaction. Batched at defaultBatchSize rows
// per commit.
func (s *Store) UpsertPosts(ctx context.Context, posts []domain.Post, sessionID string) error {
	for start := 0; start < len(posts); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(posts) {
			end = len(posts)
		}
		batch := posts[start:end]
		if err := withBusyRetry(ctx, func() error {
			return s.upsertPostBatch(ctx, batch, sessionID)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertPostBatch(ctx context.Context, batch []domain.Post, sessionID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	newCount := 0
	for _, p := range batch {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO posts (
				id, title, author, subreddit, score, upvote_ratio, num_comments,
				created_utc, url, permalink, selftext, link_url, flair,
				is_nsfw, is_spoiler, is_self, domain, content_type, scraped_at,
				category, engagement_ratio,
				enriched_title, enriched_description, enriched_author, enriched_snippet,
				enriched_published_at, sentiment_score, viral_potential
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title,
				author=excluded.author,
				score=excluded.score,
				upvote_ratio=excluded.upvote_ratio,
				num_comments=excluded.num_comments,
				url=excluded.url,
				permalink=excluded.permalink,
				selftext=excluded.selftext,
				link_url=excluded.link_url,
				flair=excluded.flair,
				is_nsfw=excluded.is_nsfw,
				is_spoiler=excluded.is_spoiler,
				content_type=excluded.content_type,
				category=excluded.category,
				engagement_ratio=excluded.engagement_ratio,
				enriched_title=excluded.enriched_title,
				enriched_description=excluded.enriched_description,
				enriched_author=excluded.enriched_author,
				enriched_snippet=excluded.enriched_snippet,
				enriched_published_at=excluded.enriched_published_at,
				sentiment_score=excluded.sentiment_score,
				viral_potential=excluded.viral_potential,
				scraped_at=MIN(posts.scraped_at, excluded.scraped_at)
		`,
			p.ID, p.Title, p.Author, p.Subreddit, p.Score, p.UpvoteRatio, p.NumComments,
			p.CreatedUTC, p.URL, p.Permalink, p.Selftext, p.LinkURL, p.Flair,
			p.IsNSFW, p.IsSpoiler, p.IsSelf, p.Domain, string(p.ContentType), p.ScrapedAt.UTC().Format(time.RFC3339Nano),
			p.Category, p.EngagementRatio,
			p.EnrichedTitle, p.EnrichedDescription, p.EnrichedAuthor, p.EnrichedSnippet,
			p.EnrichedPublishedAt, p.SentimentScore, p.ViralPotential,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			assocRes, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO post_by_session (session_id, post_id) VALUES (?, ?)`,
				sessionID, p.ID)
			if err != nil {
				return err
			}
			if assocRows, _ := assocRes.RowsAffected(); assocRows > 0 {
				newCount++
			}
		}
	}

	if newCount > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET counters = json_set(counters, '$.posts_scraped',
				json_extract(counters, '$.posts_scraped') + ?)
			WHERE session_id = ?`, newCount, sessionID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PostFilter names query_posts' filter parameters. MinScore is a pointer
// so an explicit 0 (a valid Reddit score) is distinguishable from unset.
type PostFilter struct {
	Subreddit string
	MinScore  *int
	DaysBack  int
	Search    string
}

// Page is a stable-order pagination window.
type Page struct {
	Limit  int
	Offset int
}

// QueryPosts filters on subreddit / min_score / max-age-days / a
// full-text substring on title, paged with stable ordering by
// (created_utc desc, id desc).
func (s *Store) QueryPosts(ctx context.Context, filter PostFilter, page Page) ([]domain.Post, int, error) {
	where := "WHERE 1=1"
	args := []any{}

	if filter.Subreddit != "" {
		where += " AND subreddit = ?"
		args = append(args, filter.Subreddit)
	}
	if filter.MinScore != nil {
		where += " AND score >= ?"
		args = append(args, *filter.MinScore)
	}
	if filter.DaysBack > 0 {
		cutoff := time.Now().Add(-time.Duration(filter.DaysBack) * 24 * time.Hour).Unix()
		where += " AND created_utc >= ?"
		args = append(args, cutoff)
	}
	if filter.Search != "" {
		where += " AND title LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM posts "+where, args...); err != nil {
		return nil, 0, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT * FROM posts " + where + " ORDER BY created_utc DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, page.Offset)

	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	posts := make([]domain.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.toDomain())
	}
	return posts, total, nil
}

// postRow mirrors the posts table shape for sqlx scanning; nullable
// columns are pointer fields, nil for NULL, to avoid scan errors.
type postRow struct {
	ID                   string   `db:"id"`
	Title                string   `db:"title"`
	Author               *string  `db:"author"`
	Subreddit            string   `db:"subreddit"`
	Score                int      `db:"score"`
	UpvoteRatio          float64  `db:"upvote_ratio"`
	NumComments          int      `db:"num_comments"`
	CreatedUTC           int64    `db:"created_utc"`
	URL                  string   `db:"url"`
	Permalink            string   `db:"permalink"`
	Selftext             string   `db:"selftext"`
	LinkURL              *string  `db:"link_url"`
	Flair                *string  `db:"flair"`
	IsNSFW               bool     `db:"is_nsfw"`
	IsSpoiler            bool     `db:"is_spoiler"`
	IsSelf               bool     `db:"is_self"`
	Domain               string   `db:"domain"`
	ContentType          string   `db:"content_type"`
	ScrapedAt            string   `db:"scraped_at"`
	EnrichedTitle        *string  `db:"enriched_title"`
	EnrichedDescription  *string  `db:"enriched_description"`
	EnrichedAuthor       *string  `db:"enriched_author"`
	EnrichedSnippet      *string  `db:"enriched_snippet"`
	EnrichedPublishedAt  *int64   `db:"enriched_published_at"`
	Category             string   `db:"category"`
	EngagementRatio      float64  `db:"engagement_ratio"`
	SentimentScore       *float64 `db:"sentiment_score"`
	ViralPotential       *float64 `db:"viral_potential"`
}

func (r postRow) toDomain() domain.Post {
	scrapedAt, _ := time.Parse(time.RFC3339Nano, r.ScrapedAt)
	return domain.Post{
		ID:                  r.ID,
		Title:               r.Title,
		Author:              r.Author,
		Subreddit:           r.Subreddit,
		Score:               r.Score,
		UpvoteRatio:         r.UpvoteRatio,
		NumComments:         r.NumComments,
		CreatedUTC:          r.CreatedUTC,
		URL:                 r.URL,
		Permalink:           r.Permalink,
		Selftext:            r.Selftext,
		LinkURL:             r.LinkURL,
		Flair:               r.Flair,
		IsNSFW:              r.IsNSFW,
		IsSpoiler:           r.IsSpoiler,
		IsSelf:              r.IsSelf,
		Domain:              r.Domain,
		ContentType:         domain.ContentType(r.ContentType),
		ScrapedAt:           scrapedAt,
		EnrichedTitle:       r.EnrichedTitle,
		EnrichedDescription: r.EnrichedDescription,
		EnrichedAuthor:      r.EnrichedAuthor,
		EnrichedSnippet:     r.EnrichedSnippet,
		EnrichedPublishedAt: r.EnrichedPublishedAt,
		Category:            r.Category,
		EngagementRatio:     r.EngagementRatio,
		SentimentScore:      r.SentimentScore,
		ViralPotential:      r.ViralPotential,
	}
}
