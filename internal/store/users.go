package store

import (
	"context"
	"time"

	"github.com/redditpulse/scraper/internal/domain"
)

// UpsertUsers inserts or updates user profiles and bumps the owning
// session's users_scraped counter, same contract as UpsertPosts.
func (s *Store) UpsertUsers(ctx context.Context, users []domain.User, sessionID string) error {
	for start := 0; start < len(users); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(users) {
			end = len(users)
		}
		batch := users[start:end]
		if err := withBusyRetry(ctx, func() error {
			return s.upsertUserBatch(ctx, batch, sessionID)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertUserBatch(ctx context.Context, batch []domain.User, sessionID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	newCount := 0
	for _, u := range batch {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (
				username, id, created_utc, comment_karma, link_karma,
				is_verified, has_premium, profile_description, scraped_at
			) VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(username) DO UPDATE SET
				comment_karma=excluded.comment_karma,
				link_karma=excluded.link_karma,
				is_verified=excluded.is_verified,
				has_premium=excluded.has_premium,
				profile_description=excluded.profile_description,
				scraped_at=MIN(users.scraped_at, excluded.scraped_at)
		`,
			u.Username, u.ID, u.CreatedUTC, u.CommentKarma, u.LinkKarma,
			u.IsVerified, u.HasPremium, u.ProfileDescription, u.ScrapedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			newCount++
		}
	}

	if newCount > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET counters = json_set(counters, '$.users_scraped',
				json_extract(counters, '$.users_scraped') + ?)
			WHERE session_id = ?`, newCount, sessionID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
