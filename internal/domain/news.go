package domain

import "time"

// FeedEntry is a raw syndication entry before normalization.
type FeedEntry struct {
	Title       string
	Link        string
	Summary     string
	Content     string
	PublishedAt *time.Time
}

// NewsItem is the persisted unit of ingested content, keyed by its content hash.
type NewsItem struct {
	ID          string
	Title       string
	Summary     string
	Description string
	Link        string
	SourceName  string
	Niche       string
	Language    string

	SourcePublishedAt *int64
	InsertedAt        int64

	Approved              bool
	LocalNearDuplicate    bool
	ExternalNearDuplicate bool
	Duplicate             bool

	Published   bool
	PublishedAt *int64
	ExternalRef *string
	ExternalURL *string
}

// NewsPatch lists the fields a single-row update may touch. Nil fields are left unchanged.
type NewsPatch struct {
	Published   *bool
	PublishedAt *int64
	ExternalRef *string
	ExternalURL *string
	Duplicate   *bool
}

// Empty reports whether the patch carries no field.
func (p NewsPatch) Empty() bool {
	return p.Published == nil && p.PublishedAt == nil && p.ExternalRef == nil &&
		p.ExternalURL == nil && p.Duplicate == nil
}

// NewsFilter narrows a store scan. Zero bounds and nil flags match everything.
type NewsFilter struct {
	InsertedSince  int64
	InsertedBefore int64
	Approved       *bool
	Published      *bool
	Duplicate      *bool
	NewestFirst    bool
}

// Bool returns a pointer to v, handy for filters and patches.
func Bool(v bool) *bool { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
