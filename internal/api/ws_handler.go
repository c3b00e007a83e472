package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redditpulse/scraper/internal/eventbus"
)

// handleEventStream serves /ws as a one-way chunked-HTTP JSON-frame
// stream rather than a full-duplex WebSocket: one-way server push is
// sufficient since clients only ever consume events here, never send
// them.
func (s *Server) handleEventStream(c *gin.Context) {
	sub := s.bus.Subscribe()
	defer sub.Cleanup()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	enc := json.NewEncoder(c.Writer)
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if err := enc.Encode(frameOf(ev)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func frameOf(ev eventbus.Event) map[string]any {
	frame := map[string]any{
		"type": ev.Type,
		"ts":   ev.TS,
	}
	if ev.SessionID != "" {
		frame["session_id"] = ev.SessionID
	}
	for k, v := range ev.Payload {
		frame[k] = v
	}
	return frame
}
