package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/domain"
)

// CreateSession persists a new session row, plan and options included,
// so the session row exists before any fetch begins.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	return withBusyRetry(ctx, func() error {
		return s.writeSession(ctx, sess)
	})
}

func (s *Store) writeSession(ctx context.Context, sess *domain.Session) error {
	subreddits, err := json.Marshal(sess.Subreddits)
	if err != nil {
		return err
	}
	plan, err := json.Marshal(sess.Plan)
	if err != nil {
		return err
	}
	counters, err := json.Marshal(sess.Counters)
	if err != nil {
		return err
	}
	options, err := json.Marshal(sess.Options)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, subreddits, status, plan, counters, options,
			start_time, end_time, error_message, last_heartbeat
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			subreddits=excluded.subreddits,
			status=excluded.status,
			plan=excluded.plan,
			counters=json_set(excluded.counters,
				'$.posts_scraped', json_extract(sessions.counters, '$.posts_scraped'),
				'$.users_scraped', json_extract(sessions.counters, '$.users_scraped')),
			options=excluded.options,
			end_time=excluded.end_time,
			error_message=excluded.error_message,
			last_heartbeat=excluded.last_heartbeat
	`,
		sess.SessionID, string(subreddits), string(sess.Status), string(plan), string(counters), string(options),
		sess.StartTime.UTC().Format(time.RFC3339Nano), formatNullableTime(sess.EndTime), sess.ErrorMessage,
		sess.LastHeartbeat.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// SessionPatch names the mutable subset of a session row an update may
// change; nil fields are left untouched.
type SessionPatch struct {
	Status        *domain.SessionStatus
	Plan          []domain.PlanEntry
	Counters      *domain.SessionCounters
	EndTime       *time.Time
	ErrorMessage  *string
	LastHeartbeat *time.Time
}

// UpdateSession applies patch to session_id's row and returns the
// resulting session, read-modify-write under a busy-retry, grounded on
// the read-modify-write-and-return-record shape of an fn-based session
// updater seen elsewhere in the pack. The Session Engine is the only
// caller permitted to invoke this.
//
// Counters.PostsScraped and Counters.UsersScraped are never taken
// from patch: the atomic json_set bumps in UpsertPosts and
// UpsertUsers are their sole writers, so a patch here always
// preserves whatever values are already on the row and only applies
// the Engine-owned counter fields (Errors, Progress).
func (s *Store) UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) (*domain.Session, error) {
	var result *domain.Session
	err := withBusyRetry(ctx, func() error {
		sess, err := s.getSessionTx(ctx, sessionID)
		if err != nil {
			return err
		}
		if patch.Status != nil {
			sess.Status = *patch.Status
		}
		if patch.Plan != nil {
			sess.Plan = patch.Plan
		}
		if patch.Counters != nil {
			postsScraped := sess.Counters.PostsScraped
			usersScraped := sess.Counters.UsersScraped
			sess.Counters = *patch.Counters
			sess.Counters.PostsScraped = postsScraped
			sess.Counters.UsersScraped = usersScraped
		}
		if patch.EndTime != nil {
			sess.EndTime = patch.EndTime
		}
		if patch.ErrorMessage != nil {
			sess.ErrorMessage = patch.ErrorMessage
		}
		if patch.LastHeartbeat != nil {
			sess.LastHeartbeat = *patch.LastHeartbeat
		}
		if err := s.writeSession(ctx, sess); err != nil {
			return err
		}
		result = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetSession returns the session row for id, or apperr.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.getSessionTx(ctx, id)
}

func (s *Store) getSessionTx(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// SessionFilter names list_sessions' filter parameters.
type SessionFilter struct {
	Status domain.SessionStatus
}

// ListSessions returns sessions matching filter, most recent first.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]domain.Session, error) {
	query := "SELECT * FROM sessions WHERE 1=1"
	args := []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY start_time DESC"

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.toDomain()
		if err != nil {
			continue
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// LoadActiveSessions restores sessions with status in
// {queued,running,stopping}, for the Session Engine's boot-time resume.
func (s *Store) LoadActiveSessions(ctx context.Context) ([]domain.Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM sessions WHERE status IN (?, ?, ?)`,
		string(domain.StatusQueued), string(domain.StatusRunning), string(domain.StatusStopping))
	if err != nil {
		return nil, err
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := r.toDomain()
		if err != nil {
			continue
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

type sessionRow struct {
	SessionID     string  `db:"session_id"`
	Subreddits    string  `db:"subreddits"`
	Status        string  `db:"status"`
	Plan          string  `db:"plan"`
	Counters      string  `db:"counters"`
	Options       string  `db:"options"`
	StartTime     string  `db:"start_time"`
	EndTime       *string `db:"end_time"`
	ErrorMessage  *string `db:"error_message"`
	LastHeartbeat string  `db:"last_heartbeat"`
}

func (r sessionRow) toDomain() (*domain.Session, error) {
	sess := &domain.Session{
		SessionID:    r.SessionID,
		Status:       domain.SessionStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
	}
	if err := json.Unmarshal([]byte(r.Subreddits), &sess.Subreddits); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Plan), &sess.Plan); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Counters), &sess.Counters); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Options), &sess.Options); err != nil {
		return nil, err
	}
	startTime, err := time.Parse(time.RFC3339Nano, r.StartTime)
	if err != nil {
		return nil, err
	}
	sess.StartTime = startTime
	if r.EndTime != nil {
		endTime, err := time.Parse(time.RFC3339Nano, *r.EndTime)
		if err == nil {
			sess.EndTime = &endTime
		}
	}
	heartbeat, err := time.Parse(time.RFC3339Nano, r.LastHeartbeat)
	if err == nil {
		sess.LastHeartbeat = heartbeat
	}
	return sess, nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339Nano)
	return &formatted
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
