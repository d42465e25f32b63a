package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"

	"FeedRelay/internal/domain"
)

// NormalizeOptions bounds the text kept from a feed entry.
type NormalizeOptions struct {
	CharThreshold   int
	SummaryWords    int
	MaxTextLength   int
	DefaultLanguage string
}

type normalizedEntry struct {
	Title       string
	Summary     string
	Description string
	Link        string
	Language    string
	PublishedAt *int64
}

func normalizeEntry(e domain.FeedEntry, opts NormalizeOptions) normalizedEntry {
	raw := e.Summary
	if strings.TrimSpace(raw) == "" {
		raw = e.Content
	}
	description := cleanText(raw, opts.MaxTextLength)

	summary := description
	if opts.CharThreshold > 0 && utf8.RuneCountInString(summary) > opts.CharThreshold {
		summary = firstWords(summary, opts.SummaryWords) + "..."
	}

	n := normalizedEntry{
		Title:       cleanText(e.Title, opts.MaxTextLength),
		Summary:     summary,
		Description: description,
		Link:        strings.TrimSpace(e.Link),
	}
	n.Language = detectLanguage(n.Title+" "+n.Description, opts.DefaultLanguage)
	if e.PublishedAt != nil {
		ts := e.PublishedAt.Unix()
		n.PublishedAt = &ts
	}
	return n
}

// cleanText strips markup, collapses whitespace and caps the result at max runes.
func cleanText(s string, max int) string {
	return truncateRunes(collapseSpaces(stripHTML(s)), max)
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func detectLanguage(text, fallback string) string {
	if fallback == "" {
		fallback = "pt"
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return fallback
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return fallback
}
