// Package enrich follows a Post's external link and extracts page
// metadata, using its own admission controller and circuit breaker since
// the external web is a distinct failure domain from the Forum Client's.
package enrich

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/redditpulse/scraper/internal/admission"
	"github.com/redditpulse/scraper/internal/apperr"
	"github.com/redditpulse/scraper/internal/circuit"
	"github.com/redditpulse/scraper/internal/logger"
)

// Result holds the fields extracted for one fetched page.
type Result struct {
	Title       string
	Description string
	Author      string
	Snippet     string
	PublishedAt *time.Time
}

// Enricher fetches and parses external link targets, bounded to a fixed
// number of in-flight fetches and at most one retry per Enrich call. It
// keeps no record of URLs already fetched, so a URL passed again later
// is fetched (and may be retried) again.
type Enricher struct {
	client    *retryablehttp.Client
	admission admission.Controller
	breaker   *circuit.Breaker
	sem       chan struct{}
	log       logger.Interface
}

const defaultConcurrency = 5

// New builds an Enricher bounded to defaultConcurrency in-flight fetches.
func New(adm admission.Controller, breaker *circuit.Breaker, log logger.Interface) *Enricher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1 // at most one retry per request
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second

	return &Enricher{
		client:    rc,
		admission: adm,
		breaker:   breaker,
		sem:       make(chan struct{}, defaultConcurrency),
		log:       log,
	}
}

// Enrich fetches linkURL and extracts title/description/author/snippet.
// Failures are never fatal to the caller; they surface as a non-nil error
// that the Scheduler must treat as "leave the post unenriched".
func (e *Enricher) Enrich(ctx context.Context, linkURL string) (Result, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return Result{}, apperr.ErrCancelled
	}

	if err := e.admission.Acquire(ctx); err != nil {
		return Result{}, apperr.ErrCancelled
	}

	var resp *http.Response
	err := e.breaker.Call(func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, linkURL, nil)
		if err != nil {
			return apperr.Permanent(err)
		}
		req.Header.Set("User-Agent", "redditpulse-enricher/1.0")

		r, doErr := e.client.Do(req)
		if doErr != nil {
			e.admission.RecordOutcome(admission.OutcomeError)
			return apperr.Transient(doErr)
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			r.Body.Close()
			e.admission.RecordOutcome(admission.OutcomeRateLimited)
			return apperr.Transient(errStatus(r.StatusCode))
		}
		if r.StatusCode >= 400 {
			r.Body.Close()
			e.admission.RecordOutcome(admission.OutcomeError)
			return apperr.Permanent(errStatus(r.StatusCode))
		}
		e.admission.RecordOutcome(admission.OutcomeOK)
		resp = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{}, apperr.Skipped(err)
	}
	return extract(doc), nil
}

// extract pulls title/description/author/snippet out of a parsed
// document using the configured selector set.
func extract(doc *goquery.Document) Result {
	var res Result

	res.Title = strings.TrimSpace(doc.Find("title").First().Text())

	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		res.Description = strings.TrimSpace(desc)
	}

	if author, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok {
		res.Author = strings.TrimSpace(author)
	} else if author, ok := doc.Find(`meta[property="article:author"]`).First().Attr("content"); ok {
		res.Author = strings.TrimSpace(author)
	}

	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if len(text) >= 40 {
			res.Snippet = text
			return false
		}
		return true
	})

	return res
}

type statusError struct{ code int }

func (e *statusError) Error() string { return http.StatusText(e.code) }

func errStatus(code int) error { return &statusError{code: code} }
