// Package store implements the connection-pooled transactional Store:
// SQL-on-local-file with WAL journaling for reader/writer overlap,
// bounded retry on write contention, grounded on
// titus-toia-tct-scrooper/storage/sqlite.go (WAL DSN, inline migration
// SQL, upsert-with-conflict-resolution idiom) and
// openfga-openfga/storage/sql.go (pool sizing, backoff.Retry wrapper).
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/logger"
)

// Store wraps a WAL-mode SQLite database with bounded busy-retry.
type Store struct {
	db  *sqlx.DB
	log logger.Interface
}

// Config controls pool sizing and busy handling.
type Config struct {
	Path           string
	MaxConnections int
	BusyTimeout    time.Duration
}

// Open opens (creating if absent) the store file in WAL journal mode and
// runs migrations, matching titus-toia-tct-scrooper's
// NewSQLiteStore(dbPath) -> migrate() shape.
func Open(cfg Config, log logger.Interface) (*Store, error) {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 20
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 30 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Fatal(fmt.Errorf("store: open: %w", err))
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(60 * time.Second)
	db.SetConnMaxLifetime(0)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error {
		return db.Ping()
	}, policy); err != nil {
		return nil, apperr.Fatal(fmt.Errorf("store: unreachable: %w", err))
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		return nil, apperr.Fatal(fmt.Errorf("store: migrate: %w", err))
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT,
	subreddit TEXT NOT NULL,
	score INTEGER NOT NULL,
	upvote_ratio REAL NOT NULL DEFAULT 0,
	num_comments INTEGER NOT NULL DEFAULT 0,
	created_utc INTEGER NOT NULL,
	url TEXT NOT NULL,
	permalink TEXT NOT NULL,
	selftext TEXT NOT NULL DEFAULT '',
	link_url TEXT,
	flair TEXT,
	is_nsfw INTEGER NOT NULL DEFAULT 0,
	is_spoiler INTEGER NOT NULL DEFAULT 0,
	is_self INTEGER NOT NULL DEFAULT 0,
	domain TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT 'link',
	scraped_at TEXT NOT NULL,
	enriched_title TEXT,
	enriched_description TEXT,
	enriched_author TEXT,
	enriched_snippet TEXT,
	enriched_published_at INTEGER,
	category TEXT NOT NULL DEFAULT '',
	engagement_ratio REAL NOT NULL DEFAULT 0,
	sentiment_score REAL,
	viral_potential REAL
);

CREATE INDEX IF NOT EXISTS idx_posts_created_utc ON posts(created_utc);
CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts(subreddit);
CREATE INDEX IF NOT EXISTS idx_posts_score ON posts(score);

CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	id TEXT NOT NULL,
	created_utc INTEGER NOT NULL,
	comment_karma INTEGER NOT NULL DEFAULT 0,
	link_karma INTEGER NOT NULL DEFAULT 0,
	is_verified INTEGER NOT NULL DEFAULT 0,
	has_premium INTEGER NOT NULL DEFAULT 0,
	profile_description TEXT NOT NULL DEFAULT '',
	scraped_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	subreddits JSON NOT NULL,
	status TEXT NOT NULL,
	plan JSON NOT NULL,
	counters JSON NOT NULL,
	options JSON NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT,
	error_message TEXT,
	last_heartbeat TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status_start ON sessions(status, start_time);

CREATE TABLE IF NOT EXISTS metrics (
	ts TEXT NOT NULL,
	operation TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	ok INTEGER NOT NULL,
	memory_delta INTEGER NOT NULL DEFAULT 0,
	tags JSON
);

CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(ts);

CREATE TABLE IF NOT EXISTS post_by_session (
	session_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	PRIMARY KEY (session_id, post_id)
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// withBusyRetry runs fn, retrying SQLITE_BUSY up to 5 times with a
// 10ms base, factor 2, jitter backoff. After exhaustion it surfaces
// StoreBusy, which callers must treat as Transient.
func withBusyRetry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.5
	bounded := backoff.WithMaxRetries(policy, 5)

	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bounded, ctx))

	if err != nil {
		if isBusyError(err) {
			return apperr.Transient(apperr.ErrStoreBusy)
		}
		return err
	}
	return nil
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
