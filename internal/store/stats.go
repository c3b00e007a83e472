package store

import "context"

// DatabaseStats is the /stats/database response shape: row counters plus
// on-disk size.
type DatabaseStats struct {
	PostCount        int64            `json:"post_count"`
	UserCount        int64            `json:"user_count"`
	SessionCount     int64            `json:"session_count"`
	MetricCount      int64            `json:"metric_count"`
	SizeBytes        int64            `json:"size_bytes"`
	PostsBySubreddit map[string]int64 `json:"posts_by_subreddit"`
}

// Stats gathers row counts, per-subreddit breakdown, and file size via
// PRAGMA page_count/page_size.
func (s *Store) Stats(ctx context.Context) (DatabaseStats, error) {
	var stats DatabaseStats

	if err := s.db.GetContext(ctx, &stats.PostCount, `SELECT COUNT(*) FROM posts`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &stats.UserCount, `SELECT COUNT(*) FROM users`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &stats.SessionCount, `SELECT COUNT(*) FROM sessions`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &stats.MetricCount, `SELECT COUNT(*) FROM metrics`); err != nil {
		return stats, err
	}

	var pageCount, pageSize int64
	if err := s.db.GetContext(ctx, &pageCount, `PRAGMA page_count`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &pageSize, `PRAGMA page_size`); err != nil {
		return stats, err
	}
	stats.SizeBytes = pageCount * pageSize

	rows, err := s.db.QueryxContext(ctx, `SELECT subreddit, COUNT(*) AS c FROM posts GROUP BY subreddit`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	stats.PostsBySubreddit = make(map[string]int64)
	for rows.Next() {
		var sub string
		var count int64
		if err := rows.Scan(&sub, &count); err != nil {
			return stats, err
		}
		stats.PostsBySubreddit[sub] = count
	}
	return stats, rows.Err()
}
