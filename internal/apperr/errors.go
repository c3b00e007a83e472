// Package apperr defines the error taxonomy shared across the scraping and
// session runtime: Transient, Permanent, Skipped, Cancelled and Fatal.
// Components wrap the sentinel with context; callers classify with
// errors.Is against the sentinels below.
package apperr

import "errors"

var (
	// ErrTransient marks an error the caller should retry (HTTP
	// timeout/5xx/429, StoreBusy, CircuitOpen).
	ErrTransient = errors.New("transient error")

	// ErrPermanent marks an error that will never succeed on retry
	// (404, 403, auth misconfiguration, schema violation).
	ErrPermanent = errors.New("permanent error")

	// ErrSkipped marks an item-level parse failure; the batch continues.
	ErrSkipped = errors.New("item skipped")

	// ErrCancelled marks a caller-initiated stop or deadline.
	ErrCancelled = errors.New("operation cancelled")

	// ErrFatal marks a broken invariant that must propagate to process
	// shutdown (store corruption, unreachable dependency at init).
	ErrFatal = errors.New("fatal error")

	// ErrCircuitOpen is a specific Transient cause: the breaker is
	// short-circuiting calls to this endpoint.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrStoreBusy is a specific Transient cause: the store exhausted its
	// write-contention retry budget.
	ErrStoreBusy = errors.New("store busy")

	// ErrNotFound marks a missing row (session, post) at the Store layer.
	ErrNotFound = errors.New("not found")
)

// Transient wraps err so that errors.Is(result, ErrTransient) is true.
func Transient(err error) error { return wrap(ErrTransient, err) }

// Permanent wraps err so that errors.Is(result, ErrPermanent) is true.
func Permanent(err error) error { return wrap(ErrPermanent, err) }

// Skipped wraps err so that errors.Is(result, ErrSkipped) is true.
func Skipped(err error) error { return wrap(ErrSkipped, err) }

// Fatal wraps err so that errors.Is(result, ErrFatal) is true.
func Fatal(err error) error { return wrap(ErrFatal, err) }

func wrap(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return &taxonomyError{sentinel: sentinel, cause: err}
}

type taxonomyError struct {
	sentinel error
	cause    error
}

func (e *taxonomyError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *taxonomyError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

// IsTransient reports whether err should be retried at the caller level.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrStoreBusy)
}

// IsPermanent reports whether err is not retryable.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
