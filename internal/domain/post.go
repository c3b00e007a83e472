package domain

import "time"

// ContentType classifies the media shape of a Post.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentLink  ContentType = "link"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
)

// Post is the canonical representation of a forum post, independent of
// whichever Forum Client backend produced it.
type Post struct {
	ID           string      `db:"id" json:"id"`
	Title        string      `db:"title" json:"title"`
	Author       *string     `db:"author" json:"author,omitempty"`
	Subreddit    string      `db:"subreddit" json:"subreddit"`
	Score        int         `db:"score" json:"score"`
	UpvoteRatio  float64     `db:"upvote_ratio" json:"upvote_ratio"`
	NumComments  int         `db:"num_comments" json:"num_comments"`
	CreatedUTC   int64       `db:"created_utc" json:"created_utc"`
	URL          string      `db:"url" json:"url"`
	Permalink    string      `db:"permalink" json:"permalink"`
	Selftext     string      `db:"selftext" json:"selftext"`
	LinkURL      *string     `db:"link_url" json:"link_url,omitempty"`
	Flair        *string     `db:"flair" json:"flair,omitempty"`
	IsNSFW       bool        `db:"is_nsfw" json:"is_nsfw"`
	IsSpoiler    bool        `db:"is_spoiler" json:"is_spoiler"`
	IsSelf       bool        `db:"is_self" json:"is_self"`
	Domain       string      `db:"domain" json:"domain"`
	ContentType  ContentType `db:"content_type" json:"content_type"`
	ScrapedAt    time.Time   `db:"scraped_at" json:"scraped_at"`

	// Enrichment, populated by the Content Enricher; always optional.
	EnrichedTitle       *string `db:"enriched_title" json:"enriched_title,omitempty"`
	EnrichedDescription *string `db:"enriched_description" json:"enriched_description,omitempty"`
	EnrichedAuthor      *string `db:"enriched_author" json:"enriched_author,omitempty"`
	EnrichedSnippet     *string `db:"enriched_snippet" json:"enriched_snippet,omitempty"`
	EnrichedPublishedAt *int64  `db:"enriched_published_at" json:"enriched_published_at,omitempty"`

	// Derived analytics fields; nil until an Analytics Adapter runs.
	Category        string   `db:"category" json:"category"`
	EngagementRatio float64  `db:"engagement_ratio" json:"engagement_ratio"`
	SentimentScore  *float64 `db:"sentiment_score" json:"sentiment_score,omitempty"`
	ViralPotential  *float64 `db:"viral_potential" json:"viral_potential,omitempty"`
}

// EngagementRatioOf computes num_comments relative to score, clamped to
// avoid division by zero for brand-new posts.
func EngagementRatioOf(score, numComments int) float64 {
	if score <= 0 {
		if numComments == 0 {
			return 0
		}
		return 1
	}
	return float64(numComments) / float64(score)
}

// ClassifyContentType decides a Post's ContentType from the presence of
// media fields and the linked domain, mirroring the Forum Client's
// canonicalization rule.
func ClassifyContentType(isSelf bool, domain, linkURL string) ContentType {
	switch {
	case isSelf:
		return ContentText
	case isVideoDomain(domain, linkURL):
		return ContentVideo
	case isImageDomain(domain, linkURL):
		return ContentImage
	default:
		return ContentLink
	}
}

var videoDomains = map[string]bool{
	"v.redd.it":       true,
	"youtube.com":      true,
	"youtu.be":         true,
	"streamable.com":   true,
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".gifv", ".webp"}

var imageDomains = map[string]bool{
	"i.redd.it":  true,
	"i.imgur.com": true,
	"imgur.com":   true,
}

func isVideoDomain(domain, url string) bool {
	return videoDomains[domain]
}

func isImageDomain(domain, url string) bool {
	if imageDomains[domain] {
		return true
	}
	for _, ext := range imageExtensions {
		if hasSuffixFold(url, ext) {
			return true
		}
	}
	return false
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
