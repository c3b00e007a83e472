package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/session"
)

// writeError maps an internal error to an HTTP status and body:
// validation -> 400, not-found -> 404, store/circuit -> 503, internal ->
// 500. 5xx bodies never echo the underlying error text.
func writeError(c *gin.Context, err error) {
	var validationErr *session.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, apperr.ErrStoreBusy), errors.Is(err, apperr.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	case apperr.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
