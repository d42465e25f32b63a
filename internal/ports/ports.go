package ports

import (
	"context"
	"time"

	"FeedRelay/internal/domain"
)

// NewsRepository is the durable item store. Every mutation touches a single row.
type NewsRepository interface {
	Get(ctx context.Context, id string) (domain.NewsItem, bool, error)
	// Put inserts the item unless its id already exists; inserted is false on conflict.
	Put(ctx context.Context, item domain.NewsItem) (inserted bool, err error)
	UpdateFields(ctx context.Context, id string, patch domain.NewsPatch) error
	Scan(ctx context.Context, filter domain.NewsFilter, limit int) ([]domain.NewsItem, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// SourceRepository persists configured sources and their failure counters.
type SourceRepository interface {
	ListSources(ctx context.Context, filter domain.SourceFilter) ([]domain.Source, error)
	GetSource(ctx context.Context, id string) (domain.Source, bool, error)
	// UpsertSource syncs configuration fields. Health state of an existing row is kept,
	// and a source disabled by configuration stays disabled.
	UpsertSource(ctx context.Context, src domain.Source) error
	// RecordSourceFailure increments the counter of an active source and deactivates it
	// once the counter reaches threshold. It returns the resulting state and whether
	// this call was the one that deactivated the source.
	RecordSourceFailure(ctx context.Context, id string, threshold int, reason string, at time.Time) (domain.Source, bool, error)
	ResetSourceFailures(ctx context.Context, id string, at time.Time) error
	SetSourceActive(ctx context.Context, id string, active bool) error
}

// FeedFetcher retrieves raw entries of a single source.
type FeedFetcher interface {
	Fetch(ctx context.Context, src domain.Source) (domain.FetchResult, error)
	Probe(ctx context.Context, feedURL string) error
}

// PlagiarismChecker asks an external service whether text already exists elsewhere.
type PlagiarismChecker interface {
	Check(ctx context.Context, text string) (bool, error)
}

// Publisher pushes a rendered item to the external content platform.
type Publisher interface {
	Publish(ctx context.Context, req domain.PublishRequest) (domain.PublishResult, error)
}

// Notifier delivers operator alerts (Telegram or other channels).
type Notifier interface {
	// SourceTripped reports a source whose circuit just opened after threshold
	// consecutive failures.
	SourceTripped(ctx context.Context, src domain.Source, threshold int) error
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Start(ctx context.Context, every time.Duration, job func(context.Context, time.Time)) error
	Stop(ctx context.Context) error
}
