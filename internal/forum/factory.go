package forum

import (
	"fmt"

	"github.com/redditpulse/scraper/internal/admission"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/config"
)

// New selects a Client implementation by cfg.Forum.Mode ("api", "public",
// or "mock"), grounded on
// qepting91-reddit-scraper/internal/collector/factory.go's NewCollector.
func New(cfg *config.ForumConfig, adm admission.Controller, breaker *circuit.Breaker) (Client, error) {
	switch cfg.Mode {
	case "api":
		return NewAPIClient(cfg.ClientID, cfg.ClientSecret, cfg.Username, cfg.Password, cfg.UserAgent, adm, breaker)
	case "public":
		return NewPublicClient(cfg.UserAgent, adm, breaker), nil
	case "mock":
		return NewMockClient(1), nil
	default:
		return nil, fmt.Errorf("forum: unknown mode %q", cfg.Mode)
	}
}
