package store

import (
	"context"
	"time"
)

// GC trims posts/users older than beforePostTS and metrics older than
// beforeMetricTS. Rows are only ever destroyed here, via age-based
// retention cleanup driven by the Retention scheduler.
func (s *Store) GC(ctx context.Context, beforePostTS, beforeMetricTS time.Time) error {
	return withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE created_utc < ?`, beforePostTS.Unix()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM users WHERE username NOT IN (SELECT DISTINCT author FROM posts WHERE author IS NOT NULL)
			AND scraped_at < ?`, beforePostTS.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE ts < ?`, beforeMetricTS.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return tx.Commit()
	})
}
