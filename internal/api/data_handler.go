package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/redditpulse/scraper/internal/store"
)

const (
	defaultPostsLimit = 50
	maxPostsLimit     = 500
)

func (s *Server) handleDataPosts(c *gin.Context) {
	filter := store.PostFilter{
		Subreddit: c.Query("subreddit"),
		Search:    c.Query("search"),
	}
	if v, err := strconv.Atoi(c.Query("min_score")); err == nil {
		filter.MinScore = &v
	}
	if v, err := strconv.Atoi(c.Query("days_back")); err == nil {
		filter.DaysBack = v
	}

	page := store.Page{Limit: defaultPostsLimit}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if page.Limit > maxPostsLimit {
		page.Limit = maxPostsLimit
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		page.Offset = v
	}

	posts, total, err := s.store.QueryPosts(c.Request.Context(), filter, page)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":  posts,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (s *Server) handleStatsDatabase(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
