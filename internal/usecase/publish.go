package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"FeedRelay/internal/dedup"
	"FeedRelay/internal/domain"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

// PublishConfig tunes one publish batch.
type PublishConfig struct {
	BatchSize          int
	Delay              time.Duration
	Timeout            time.Duration
	PublishedScanLimit int
	Threshold          float64
	TitleMaxLength     int
	ExcerptMaxLength   int
	// Category maps a niche to the target's category id.
	Category func(niche string) int
}

// PublishDeps wires the publish selector.
type PublishDeps struct {
	Repository ports.NewsRepository
	Publisher  ports.Publisher
	Retry      retry.Policy
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
	NewRunID   func() string
	Config     PublishConfig
}

// PublishSelector republishes approved items that do not collide with
// already-published content.
type PublishSelector struct {
	repo      ports.NewsRepository
	publisher ports.Publisher
	policy    retry.Policy
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	runID     func() string
	cfg       PublishConfig
}

// NewPublishSelector constructs the selector. A nil Publisher disables it.
func NewPublishSelector(deps PublishDeps) *PublishSelector {
	s := &PublishSelector{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		policy:    deps.Retry,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		runID:     deps.NewRunID,
		cfg:       deps.Config,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.runID == nil {
		s.runID = newRunID
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 50
	}
	if s.cfg.Timeout <= 0 {
		s.cfg.Timeout = 30 * time.Second
	}
	if s.cfg.Threshold <= 0 {
		s.cfg.Threshold = 0.8
	}
	if s.cfg.Category == nil {
		s.cfg.Category = func(string) int { return 1 }
	}
	return s
}

// Run publishes one batch. Per-item failures are counted and never abort the batch.
func (s *PublishSelector) Run(ctx context.Context) (domain.PublishStats, error) {
	stats := domain.PublishStats{RunID: s.runID(), StartedAt: s.now()}
	logger := s.logger.With("run_id", stats.RunID)

	if s.publisher == nil {
		stats.Disabled = true
		logger.Warn("publish target not configured, skipping batch")
		return stats, nil
	}

	err := s.run(ctx, logger, &stats)
	stats.Duration = s.now().Sub(stats.StartedAt)
	s.metrics.Run("publish", stats.Duration, err)

	logger.Info("publish finished",
		"published", stats.Published,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, err
}

func (s *PublishSelector) run(ctx context.Context, logger *slog.Logger, stats *domain.PublishStats) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	queue, err := s.repo.Scan(ctx, domain.NewsFilter{
		Approved:    domain.Bool(true),
		Published:   domain.Bool(false),
		Duplicate:   domain.Bool(false),
		NewestFirst: true,
	}, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("load publish queue: %w", err)
	}
	if len(queue) == 0 {
		logger.Info("publish queue empty")
		return nil
	}

	published, err := s.repo.Scan(ctx, domain.NewsFilter{Published: domain.Bool(true), NewestFirst: true}, s.cfg.PublishedScanLimit)
	if err != nil {
		return fmt.Errorf("load published corpus: %w", err)
	}
	corpus := make([]string, 0, len(published)+len(queue))
	for _, item := range published {
		corpus = append(corpus, dedup.Canonical(item.Title))
	}

	calls := 0
	for _, item := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}

		title := dedup.Canonical(item.Title)
		if score, ok := s.collides(title, corpus); ok {
			if err := s.repo.UpdateFields(ctx, item.ID, domain.NewsPatch{Duplicate: domain.Bool(true)}); err != nil {
				stats.Errors++
				s.metrics.Publish("error")
				logger.Warn("mark duplicate failed", "id", item.ID, "error", err)
				continue
			}
			stats.Duplicates++
			s.metrics.Publish("duplicate")
			logger.Info("skipping item similar to published content", "id", item.ID, "similarity", score)
			continue
		}

		if calls > 0 {
			if err := sleepContext(ctx, s.cfg.Delay); err != nil {
				return err
			}
		}
		calls++

		if err := s.publish(ctx, item); err != nil {
			stats.Errors++
			s.metrics.Publish("error")
			logger.Warn("publish failed", "id", item.ID, "title", item.Title, "error", err)
			continue
		}
		stats.Published++
		s.metrics.Publish("published")
		corpus = append(corpus, title)
	}
	return nil
}

func (s *PublishSelector) collides(title string, corpus []string) (float64, bool) {
	for _, other := range corpus {
		if score := dedup.Similarity(title, other); score > s.cfg.Threshold {
			return score, true
		}
	}
	return 0, false
}

func (s *PublishSelector) publish(ctx context.Context, item domain.NewsItem) error {
	now := s.now()
	body, err := RenderPostBody(item, now)
	if err != nil {
		return err
	}

	req := domain.PublishRequest{
		Title:      truncateRunes(item.Title, s.cfg.TitleMaxLength),
		HTMLBody:   body,
		CategoryID: s.cfg.Category(item.Niche),
		Excerpt:    truncateRunes(item.Summary, s.cfg.ExcerptMaxLength),
		Meta: map[string]string{
			"source_name":  item.SourceName,
			"source_link":  item.Link,
			"niche":        item.Niche,
			"collected_at": strconv.FormatInt(item.InsertedAt, 10),
		},
	}

	res, err := retry.Do(ctx, s.policy, func(ctx context.Context) (domain.PublishResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		return s.publisher.Publish(callCtx, req)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", item.ID, err)
	}

	patch := domain.NewsPatch{
		Published:   domain.Bool(true),
		PublishedAt: domain.Int64(s.now().Unix()),
		ExternalRef: domain.String(res.ExternalID),
	}
	if res.ExternalURL != "" {
		patch.ExternalURL = domain.String(res.ExternalURL)
	}
	if err := s.repo.UpdateFields(ctx, item.ID, patch); err != nil {
		return fmt.Errorf("record publication of %s as %s: %w", item.ID, res.ExternalID, err)
	}
	return nil
}
