// Package session implements the Session Engine: durable session
// lifecycle management, progress aggregation, stop semantics and
// crash-resumability, using an explicit transition table and a
// coalescing progress publisher.
package session

import (
	"fmt"

	"github.com/redditpulse/scraper/internal/domain"
)

var validTransitions = map[domain.SessionStatus][]domain.SessionStatus{
	domain.StatusQueued:    {domain.StatusRunning, domain.StatusStopping},
	domain.StatusRunning:   {domain.StatusStopping, domain.StatusCompleted, domain.StatusFailed},
	domain.StatusStopping:  {domain.StatusCancelled, domain.StatusCompleted, domain.StatusFailed},
	domain.StatusCompleted: {},
	domain.StatusFailed:    {domain.StatusQueued}, // resume-after-failure restart
	domain.StatusCancelled: {},
}

// ValidateTransition reports whether from->to is a legal session
// transition.
func ValidateTransition(from, to domain.SessionStatus) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("session: illegal transition %s -> %s", from, to)
}

// IsTerminal reports whether status is a terminal state.
func IsTerminal(status domain.SessionStatus) bool {
	return status == domain.StatusCompleted || status == domain.StatusFailed || status == domain.StatusCancelled
}

// IsActive reports whether status participates in scheduling/resume.
func IsActive(status domain.SessionStatus) bool {
	return status == domain.StatusQueued || status == domain.StatusRunning || status == domain.StatusStopping
}
