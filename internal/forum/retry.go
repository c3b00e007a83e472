package forum

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redditpulse/scraper/internal/apperr"
)

// retryPolicy builds the exponential backoff schedule: base 1s,
// factor 2, jitter +-25%, max 3 retries.
func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries instead
	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}

// httpErrorKind classifies an HTTP status code into the Transient /
// Permanent taxonomy: timeouts/5xx/429 are Transient,
// other 4xx are Permanent.
func httpErrorKind(statusCode int, err error) error {
	if err != nil && isTimeout(err) {
		return apperr.Transient(err)
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return apperr.Transient(errors.New("rate limited"))
	case statusCode >= 500:
		return apperr.Transient(errors.New("server error"))
	case statusCode >= 400:
		return apperr.Permanent(errors.New("client error"))
	default:
		return nil
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryTransient runs fn, retrying only Transient errors per retryPolicy,
// and converting context cancellation into apperr.ErrCancelled.
func retryTransient(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if apperr.IsTransient(err) {
			return err
		}
		// Permanent/Skipped/Fatal/Cancelled: stop retrying immediately.
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, retryPolicy(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return apperr.ErrCancelled
		}
	}
	return err
}

// jitterDuration adds a random offset of up to +-pct of d to d, for a
// one-off jittered sleep outside of the backoff.Retry loop.
func jitterDuration(d time.Duration, pct float64) time.Duration {
	delta := float64(d) * pct
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}
