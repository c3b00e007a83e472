package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redditpulse/scraper/internal/domain"
)

// RecordMetric appends one observation; the metrics table is append-only.
func (s *Store) RecordMetric(ctx context.Context, sample domain.MetricSample) error {
	tags, err := json.Marshal(sample.Tags)
	if err != nil {
		return err
	}
	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO metrics (ts, operation, duration_ms, ok, memory_delta, tags)
			VALUES (?,?,?,?,?,?)`,
			sample.TSStart.UTC().Format(time.RFC3339Nano), sample.Operation, sample.DurationMs,
			sample.OK, sample.MemoryDelta, string(tags),
		)
		return err
	})
}
