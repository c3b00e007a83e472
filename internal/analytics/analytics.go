// Package analytics provides pure functions mapping post batches to
// sentiment, trend and viral signals. Their presence must not change
// scheduler/session semantics, so this package gives them a swappable
// interface seam rather than a specific model, since no available
// library performs sentiment/trend analysis.
package analytics

import (
	"strings"

	"github.com/redditpulse/scraper/internal/domain"
)

// Scorer computes derived analytics for a batch of posts in place. It
// must be safe to call with a nil or empty batch and must never mutate
// scheduler- or session-owned fields.
type Scorer interface {
	Score(posts []domain.Post) []domain.Post
}

// HeuristicScorer is the default, dependency-free Scorer: small
// deterministic heuristics standing in for a real sentiment/trend model,
// chosen so the seam can be swapped for a production scorer without
// touching the Scheduler.
type HeuristicScorer struct{}

var _ Scorer = HeuristicScorer{}

func (HeuristicScorer) Score(posts []domain.Post) []domain.Post {
	for i := range posts {
		posts[i].Category = categorize(posts[i])
		sentiment := sentimentScore(posts[i].Title, posts[i].Selftext)
		posts[i].SentimentScore = &sentiment
		viral := viralPotential(posts[i])
		posts[i].ViralPotential = &viral
	}
	return posts
}

func categorize(p domain.Post) string {
	switch {
	case p.Score >= 10000:
		return "viral"
	case p.Score >= 1000:
		return "popular"
	case p.Score >= 100:
		return "trending"
	default:
		return "normal"
	}
}

var positiveWords = []string{"great", "amazing", "love", "awesome", "excellent", "happy", "good"}
var negativeWords = []string{"hate", "terrible", "awful", "worst", "bad", "angry", "sad"}

// sentimentScore returns a naive lexicon-based score in [-1, 1].
func sentimentScore(title, body string) float64 {
	text := strings.ToLower(title + " " + body)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(text, w)
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}

// viralPotential blends score and engagement ratio into a 0..1 score.
func viralPotential(p domain.Post) float64 {
	engagement := p.EngagementRatio
	if engagement > 1 {
		engagement = 1
	}
	scoreComponent := float64(p.Score) / 10000.0
	if scoreComponent > 1 {
		scoreComponent = 1
	}
	potential := 0.6*scoreComponent + 0.4*engagement
	if potential > 1 {
		potential = 1
	}
	return potential
}

// TrendSummary aggregates a batch into per-subreddit counts and average
// score, a pure function over already-scored posts.
type TrendSummary struct {
	Subreddit  string  `json:"subreddit"`
	PostCount  int     `json:"post_count"`
	AvgScore   float64 `json:"avg_score"`
	TopCategory string `json:"top_category"`
}

// Trends computes one TrendSummary per subreddit present in posts.
func Trends(posts []domain.Post) []TrendSummary {
	bySubreddit := make(map[string][]domain.Post)
	for _, p := range posts {
		bySubreddit[p.Subreddit] = append(bySubreddit[p.Subreddit], p)
	}

	summaries := make([]TrendSummary, 0, len(bySubreddit))
	for sub, group := range bySubreddit {
		totalScore := 0
		categoryCounts := make(map[string]int)
		for _, p := range group {
			totalScore += p.Score
			categoryCounts[p.Category]++
		}
		topCategory := ""
		topCount := -1
		for cat, count := range categoryCounts {
			if count > topCount {
				topCategory = cat
				topCount = count
			}
		}
		summaries = append(summaries, TrendSummary{
			Subreddit:   sub,
			PostCount:   len(group),
			AvgScore:    float64(totalScore) / float64(len(group)),
			TopCategory: topCategory,
		})
	}
	return summaries
}
