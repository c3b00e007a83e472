// Package api implements the Control API, a gin router exposing session
// control, post/stats queries and a live event stream to the dashboard,
// using the standard request-validate-call-respond handler shape.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redditpulse/scraper/internal/config"
	"github.com/redditpulse/scraper/internal/eventbus"
	"github.com/redditpulse/scraper/internal/logger"
	"github.com/redditpulse/scraper/internal/session"
	"github.com/redditpulse/scraper/internal/store"
)

// Server wires the Session Engine, Store, Event Bus and Config into a
// gin.Engine.
type Server struct {
	engine *session.Engine
	store  *store.Store
	bus    *eventbus.Bus
	cfg    *config.Config
	log    logger.Interface

	router *gin.Engine
}

// New builds a Server with every route registered.
func New(eng *session.Engine, st *store.Store, bus *eventbus.Bus, cfg *config.Config, log logger.Interface) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{engine: eng, store: st, bus: bus, cfg: cfg, log: log, router: r}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for the process's listener.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/config", s.handleConfig)
	s.router.POST("/scrape/start", s.handleScrapeStart)
	s.router.GET("/scrape/status/:id", s.handleScrapeStatus)
	s.router.GET("/scrape/sessions", s.handleScrapeSessions)
	s.router.DELETE("/scrape/stop/:id", s.handleScrapeStop)
	s.router.GET("/data/posts", s.handleDataPosts)
	s.router.GET("/stats/database", s.handleStatsDatabase)
	s.router.GET("/ws", s.handleEventStream)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.NonSecretView())
}
