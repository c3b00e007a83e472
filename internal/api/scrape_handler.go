package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redditpulse/scraper/internal/domain"
	"github.com/redditpulse/scraper/internal/session"
	"github.com/redditpulse/scraper/internal/store"
)

const (
	defaultSort       = domain.SortHot
	defaultTimeFilter = domain.TimeAll
	defaultMaxWorkers = 4
)

// scrapeStartRequest is the POST /scrape/start request body.
type scrapeStartRequest struct {
	Subreddits        []string          `json:"subreddits" binding:"required"`
	PostsPerSubreddit int               `json:"posts_per_subreddit"`
	Sort              domain.Sort       `json:"sort"`
	TimeFilter        domain.TimeFilter `json:"time_filter"`
	IncludeUsers      bool              `json:"include_users"`
	ExtractContent    bool              `json:"extract_content"`
	Parallel          bool              `json:"parallel"`
	MaxWorkers        int               `json:"max_workers"`
	MinScore          int               `json:"min_score"`
	MaxAgeDays        int               `json:"max_age_days"`
}

func (s *Server) handleScrapeStart(c *gin.Context) {
	var req scrapeStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	sort := req.Sort
	if sort == "" {
		sort = defaultSort
	}
	timeFilter := req.TimeFilter
	if timeFilter == "" {
		timeFilter = defaultTimeFilter
	}
	maxWorkers := req.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}

	sessionID, err := s.engine.Start(c.Request.Context(), session.StartConfig{
		Subreddits:        req.Subreddits,
		PostsPerSubreddit: req.PostsPerSubreddit,
		Sort:              sort,
		TimeFilter:        timeFilter,
		IncludeUsers:      req.IncludeUsers,
		ExtractContent:    req.ExtractContent,
		Parallel:          req.Parallel,
		MaxWorkers:        maxWorkers,
		MinScore:          req.MinScore,
		MaxAgeDays:        req.MaxAgeDays,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}

func (s *Server) handleScrapeStatus(c *gin.Context) {
	id := c.Param("id")
	view, err := s.engine.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleScrapeSessions(c *gin.Context) {
	statusFilter := domain.SessionStatus(c.Query("status"))
	views, err := s.engine.List(c.Request.Context(), store.SessionFilter{Status: statusFilter})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleScrapeStop(c *gin.Context) {
	id := c.Param("id")
	status, err := s.engine.Stop(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": status})
}
