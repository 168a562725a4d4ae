package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractPublishedDateJSONLD(t *testing.T) {
	raw := `<html><head><script type="application/ld+json">
	{"@type": "NewsArticle", "datePublished": "2026-07-15T08:30:00Z", "author": {"name": "x"}}
	</script></head><body></body></html>`

	got := ExtractPublishedDate(raw)
	assert.Equal(t, day(2026, 7, 15), got.Truncate(24*time.Hour))
}

func TestExtractPublishedDateNestedJSONLD(t *testing.T) {
	raw := `<html><head><script type="application/ld+json">
	{"@graph": [{"@type": "WebPage"}, {"@type": "Article", "datePublished": "2026-06-01"}]}
	</script></head><body></body></html>`

	got := ExtractPublishedDate(raw)
	assert.Equal(t, day(2026, 6, 1), got)
}

func TestExtractPublishedDateOpenGraph(t *testing.T) {
	raw := `<html><head>
	<meta property="article:published_time" content="2026-05-20T12:00:00Z">
	</head><body></body></html>`

	got := ExtractPublishedDate(raw)
	assert.Equal(t, day(2026, 5, 20), got.Truncate(24*time.Hour))
}

func TestExtractPublishedDateTimeTag(t *testing.T) {
	raw := `<html><body><article>
	<time datetime="2026-04-10">April 10</time>
	</article></body></html>`

	got := ExtractPublishedDate(raw)
	assert.Equal(t, day(2026, 4, 10), got)
}

func TestExtractPublishedDateLooseText(t *testing.T) {
	raw := `<html><body><p>Published on March 3, 2026 by the newsroom.</p></body></html>`
	got := ExtractPublishedDate(raw)
	assert.Equal(t, day(2026, 3, 3), got)
}

func TestExtractPublishedDatePrefersJSONLDOverMeta(t *testing.T) {
	raw := `<html><head>
	<script type="application/ld+json">{"datePublished": "2026-02-01"}</script>
	<meta property="article:published_time" content="2026-01-01T00:00:00Z">
	</head><body></body></html>`

	got := ExtractPublishedDate(raw)
	assert.Equal(t, day(2026, 2, 1), got)
}

func TestExtractPublishedDateNothingFound(t *testing.T) {
	got := ExtractPublishedDate(`<html><body><p>No dates here.</p></body></html>`)
	assert.True(t, got.IsZero())
}
