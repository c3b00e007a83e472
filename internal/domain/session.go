package domain

import "time"

// SessionStatus is the Session Engine's state machine position.
type SessionStatus string

const (
	StatusQueued    SessionStatus = "queued"
	StatusRunning   SessionStatus = "running"
	StatusStopping  SessionStatus = "stopping"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Sort and TimeFilter mirror the Forum Client's list_posts parameters.
type Sort string

const (
	SortHot    Sort = "hot"
	SortNew    Sort = "new"
	SortTop    Sort = "top"
	SortRising Sort = "rising"
)

type TimeFilter string

const (
	TimeHour  TimeFilter = "hour"
	TimeDay   TimeFilter = "day"
	TimeWeek  TimeFilter = "week"
	TimeMonth TimeFilter = "month"
	TimeYear  TimeFilter = "year"
	TimeAll   TimeFilter = "all"
)

// PlanEntry is one subreddit's slice of a session's work.
type PlanEntry struct {
	Subreddit   string     `json:"subreddit"`
	TargetCount int        `json:"target_count"`
	Sort        Sort       `json:"sort"`
	TimeFilter  TimeFilter `json:"time_filter"`

	// Observed is the running per-entry count of committed posts,
	// persisted alongside the entry so restart is idempotent.
	Observed int    `json:"observed"`
	Cursor   string `json:"cursor,omitempty"`
}

// SessionOptions are the caller-supplied knobs for a scrape.
type SessionOptions struct {
	Parallel        bool       `json:"parallel"`
	IncludeUsers    bool       `json:"include_users"`
	ExtractContent  bool       `json:"extract_content"`
	Workers         int        `json:"workers"`
	Sort            Sort       `json:"sort"`
	TimeFilter      TimeFilter `json:"time_filter"`
	MinScore        int        `json:"min_score"`
	MaxAgeDays      int        `json:"max_age_days"`
}

// SessionCounters are the mutable progress counters attached to a
// session. PostsScraped and UsersScraped are written exclusively by
// the Store's atomic batch-commit increments in UpsertPosts and
// UpsertUsers; Errors and Progress are the Session Engine's to set.
type SessionCounters struct {
	PostsScraped int `json:"posts_scraped"`
	UsersScraped int `json:"users_scraped"`
	Errors       int `json:"errors"`
	Progress     int `json:"progress"`
}

// Session is the durable unit of scraping work.
type Session struct {
	SessionID     string          `db:"session_id" json:"session_id"`
	Subreddits    []string        `db:"-" json:"subreddits"`
	Plan          []PlanEntry     `db:"-" json:"plan"`
	Status        SessionStatus   `db:"status" json:"status"`
	Counters      SessionCounters `db:"-" json:"counters"`
	StartTime     time.Time       `db:"start_time" json:"start_time"`
	EndTime       *time.Time      `db:"end_time" json:"end_time,omitempty"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	Options       SessionOptions  `db:"-" json:"options"`
	LastHeartbeat time.Time       `db:"last_heartbeat" json:"last_heartbeat"`
}

// TotalTarget sums target_count across the plan.
func (s *Session) TotalTarget() int {
	total := 0
	for _, p := range s.Plan {
		total += p.TargetCount
	}
	return total
}

// ComputeProgress computes a monotone progress percentage:
// 100 * sum(min(observed_i, target_i)) / sum(target_i).
func (s *Session) ComputeProgress() int {
	total := s.TotalTarget()
	if total == 0 {
		return 100
	}
	observed := 0
	for _, p := range s.Plan {
		o := p.Observed
		if o > p.TargetCount {
			o = p.TargetCount
		}
		observed += o
	}
	progress := 100 * observed / total
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}
	return progress
}

// SessionView is the read-only projection returned by the Control API.
type SessionView struct {
	SessionID    string          `json:"session_id"`
	Subreddits   []string        `json:"subreddits"`
	Status       SessionStatus   `json:"status"`
	Counters     SessionCounters `json:"counters"`
	Plan         []PlanEntry     `json:"plan"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Options      SessionOptions  `json:"options"`
}

// View projects a Session into its API-facing SessionView.
func (s *Session) View() SessionView {
	return SessionView{
		SessionID:    s.SessionID,
		Subreddits:   s.Subreddits,
		Status:       s.Status,
		Counters:     s.Counters,
		Plan:         s.Plan,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		ErrorMessage: s.ErrorMessage,
		Options:      s.Options,
	}
}
