package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/redditpulse/scraper/internal/domain"
)

func TestClassifyContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		isSelf  bool
		domain  string
		linkURL string
		want    domain.ContentType
	}{
		{"self post is text", true, "self.golang", "", domain.ContentText},
		{"reddit video", false, "v.redd.it", "https://v.redd.it/abc", domain.ContentVideo},
		{"youtube link", false, "youtube.com", "https://youtube.com/watch?v=x", domain.ContentVideo},
		{"reddit image host", false, "i.redd.it", "https://i.redd.it/abc.png", domain.ContentImage},
		{"image by extension", false, "example.com", "https://example.com/pic.JPG", domain.ContentImage},
		{"plain link", false, "example.com", "https://example.com/article", domain.ContentLink},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := domain.ClassifyContentType(tt.isSelf, tt.domain, tt.linkURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngagementRatioOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, domain.EngagementRatioOf(0, 0))
	assert.Equal(t, 1.0, domain.EngagementRatioOf(0, 5))
	assert.Equal(t, 1.0, domain.EngagementRatioOf(-3, 5))
	assert.InDelta(t, 0.5, domain.EngagementRatioOf(10, 5), 0.0001)
}
