package usecase

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedRelay/internal/domain"
)

var defaultNormalize = NormalizeOptions{CharThreshold: 250, SummaryWords: 60, MaxTextLength: 1000, DefaultLanguage: "pt"}

func TestNormalizeStripsMarkupAndWhitespace(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := normalizeEntry(domain.FeedEntry{
		Title:       "  Nova   <b>vacina</b>\n aprovada ",
		Link:        " https://example.com/a ",
		Summary:     "<p>Primeiro&nbsp;parágrafo.</p>\n\n<p>Segundo &amp; último.</p>",
		PublishedAt: &published,
	}, defaultNormalize)

	assert.Equal(t, "Nova vacina aprovada", n.Title)
	assert.Equal(t, "https://example.com/a", n.Link)
	assert.Equal(t, "Primeiro parágrafo. Segundo & último.", n.Summary)
	assert.Equal(t, n.Summary, n.Description)
	require.NotNil(t, n.PublishedAt)
	assert.Equal(t, published.Unix(), *n.PublishedAt)
}

func TestNormalizeFallsBackToContent(t *testing.T) {
	t.Parallel()

	n := normalizeEntry(domain.FeedEntry{Title: "T", Link: "https://x", Content: "<div>Body text</div>"}, defaultNormalize)
	assert.Equal(t, "Body text", n.Summary)
}

func TestNormalizeTruncatesLongSummaries(t *testing.T) {
	t.Parallel()

	words := make([]string, 80)
	for i := range words {
		words[i] = "palavra"
	}
	long := strings.Join(words, " ")

	n := normalizeEntry(domain.FeedEntry{Title: "T", Link: "https://x", Summary: long}, defaultNormalize)
	assert.Equal(t, strings.Join(words[:60], " ")+"...", n.Summary)
	assert.Equal(t, long, n.Description)
}

func TestNormalizeThresholdCountsCharacters(t *testing.T) {
	t.Parallel()

	// 30 x "ação é " trimmed: 209 characters, 299 bytes.
	text := strings.TrimSpace(strings.Repeat("ação é ", 30))
	require.Equal(t, 209, utf8.RuneCountInString(text))
	require.Greater(t, len(text), defaultNormalize.CharThreshold)

	n := normalizeEntry(domain.FeedEntry{Title: "T", Link: "https://x", Summary: text}, defaultNormalize)
	assert.Equal(t, text, n.Summary)
	assert.Equal(t, n.Description, n.Summary)
	assert.False(t, strings.HasSuffix(n.Summary, "..."))
}

func TestNormalizeCapsStoredText(t *testing.T) {
	t.Parallel()

	n := normalizeEntry(domain.FeedEntry{
		Title:   strings.Repeat("á", 1500),
		Link:    "https://x",
		Summary: strings.Repeat("b", 1500),
	}, defaultNormalize)

	assert.Equal(t, 1000, len([]rune(n.Title)))
	assert.Equal(t, 1000, len([]rune(n.Description)))
	assert.True(t, strings.HasSuffix(n.Summary, "..."))
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pt", detectLanguage("", "pt"))
	assert.Equal(t, "pt", detectLanguage("", ""))
	assert.Equal(t, "en",
		detectLanguage("The government announced a new tax plan on Tuesday, according to officials familiar with the matter.", "pt"))
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "saú", truncateRunes("saúde", 3))
	assert.Equal(t, "saúde", truncateRunes("saúde", 0))
	assert.Equal(t, "saúde", truncateRunes("saúde", 10))
}
