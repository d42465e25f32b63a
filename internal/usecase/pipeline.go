package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FeedRelay/internal/dedup"
	"FeedRelay/internal/domain"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/ports"
)

// ErrStoreUnavailable aborts a run whose store stopped answering.
var ErrStoreUnavailable = errors.New("store unavailable")

// IngestionConfig tunes one ingestion run.
type IngestionConfig struct {
	Niches    []string
	ItemDelay time.Duration
	Workers   int
	Normalize NormalizeOptions
}

// IngestionDeps wires all driven adapters into the ingestion pipeline.
type IngestionDeps struct {
	Registry   *SourceRegistry
	Fetcher    ports.FeedFetcher
	Engine     *dedup.Engine
	Repository ports.NewsRepository
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
	NewRunID   func() string
	Config     IngestionConfig
}

// IngestionPipeline fetches every active source and admits its entries.
type IngestionPipeline struct {
	registry *SourceRegistry
	fetcher  ports.FeedFetcher
	engine   *dedup.Engine
	repo     ports.NewsRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	runID    func() string
	cfg      IngestionConfig
}

// NewIngestionPipeline constructs the orchestration component.
func NewIngestionPipeline(deps IngestionDeps) *IngestionPipeline {
	p := &IngestionPipeline{
		registry: deps.Registry,
		fetcher:  deps.Fetcher,
		engine:   deps.Engine,
		repo:     deps.Repository,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		runID:    deps.NewRunID,
		cfg:      deps.Config,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.runID == nil {
		p.runID = newRunID
	}
	if p.cfg.Workers < 1 {
		p.cfg.Workers = 1
	}
	return p
}

// Run processes every active source once. Stats are returned even when the run
// aborts; the error is non-nil only for store failures and cancellation.
func (p *IngestionPipeline) Run(ctx context.Context) (domain.RunStats, error) {
	stats := domain.RunStats{RunID: p.runID(), StartedAt: p.now()}
	logger := p.logger.With("run_id", stats.RunID)

	err := p.run(ctx, logger, &stats)
	stats.Duration = p.now().Sub(stats.StartedAt)
	p.metrics.Run("ingest", stats.Duration, err)

	logger.Info("ingestion finished",
		"saved", stats.Saved,
		"existing", stats.Existing,
		"duplicates", stats.Duplicates,
		"invalid", stats.Invalid,
		"errors", stats.Errors,
		"sources", stats.SourcesProcessed,
		"sources_invalid", stats.SourcesInvalid,
		"sources_failed", stats.SourcesFailed,
		"duration", stats.Duration,
	)
	return stats, err
}

func (p *IngestionPipeline) run(ctx context.Context, logger *slog.Logger, stats *domain.RunStats) error {
	if err := p.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	sources, err := p.registry.Active(ctx, p.cfg.Niches)
	if err != nil {
		return err
	}
	logger.Info("ingestion started", "sources", len(sources))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			local, err := p.processSource(gctx, logger.With("source", src.Name), src)
			mu.Lock()
			mergeRunStats(stats, local)
			mu.Unlock()
			return err
		})
	}
	return g.Wait()
}

func (p *IngestionPipeline) processSource(ctx context.Context, logger *slog.Logger, src domain.Source) (domain.RunStats, error) {
	var local domain.RunStats
	if err := ctx.Err(); err != nil {
		return local, err
	}

	res, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return local, ctxErr
		}
		local.SourcesFailed++
		local.Errors++
		p.metrics.Fetch("error")
		logger.Warn("fetch failed", "error", err)
		if _, _, rErr := p.registry.RecordFailure(ctx, src, err.Error()); rErr != nil {
			logger.Warn("record source failure", "error", rErr)
		}
		return local, nil
	}

	if res.Status == domain.FetchInvalid {
		local.SourcesInvalid++
		p.metrics.Fetch(string(domain.FetchInvalid))
		logger.Warn("feed invalid", "reason", res.Reason)
		return local, nil
	}

	local.SourcesProcessed++
	p.metrics.Fetch(string(domain.FetchOK))
	if err := p.registry.RecordSuccess(ctx, src); err != nil {
		logger.Warn("reset source failures", "error", err)
	}

	for i, entry := range res.Entries {
		if i > 0 {
			if err := sleepContext(ctx, p.cfg.ItemDelay); err != nil {
				return local, err
			}
		}
		if err := p.processEntry(ctx, logger, src, entry, &local); err != nil {
			return local, err
		}
	}
	return local, nil
}

func (p *IngestionPipeline) processEntry(ctx context.Context, logger *slog.Logger, src domain.Source, entry domain.FeedEntry, local *domain.RunStats) error {
	n := normalizeEntry(entry, p.cfg.Normalize)
	if n.Title == "" || n.Link == "" {
		local.Invalid++
		p.metrics.Item(string(dedup.OutcomeRejectedInvalid))
		logger.Debug("entry rejected", "reason", "missing title or link", "link", n.Link)
		return nil
	}

	decision, err := p.engine.Evaluate(ctx, dedup.Candidate{Title: n.Title, Summary: n.Summary, Link: n.Link})
	if err != nil {
		return p.storeFailure(ctx, logger, err, local)
	}

	switch decision.Outcome {
	case dedup.OutcomeExisting:
		local.Existing++
		p.metrics.Item(string(dedup.OutcomeExisting))
		return nil
	case dedup.OutcomeRejectedInvalid:
		local.Invalid++
		p.metrics.Item(string(dedup.OutcomeRejectedInvalid))
		return nil
	}

	item := domain.NewsItem{
		ID:                    decision.ID,
		Title:                 n.Title,
		Summary:               n.Summary,
		Description:           n.Description,
		Link:                  n.Link,
		SourceName:            src.Name,
		Niche:                 src.Niche,
		Language:              n.Language,
		SourcePublishedAt:     n.PublishedAt,
		InsertedAt:            p.now().Unix(),
		Approved:              decision.Approved(),
		LocalNearDuplicate:    decision.LocalNearDuplicate,
		ExternalNearDuplicate: decision.ExternalNearDuplicate,
	}

	inserted, err := p.repo.Put(ctx, item)
	if err != nil {
		return p.storeFailure(ctx, logger, err, local)
	}

	switch {
	case !inserted:
		local.Existing++
		p.metrics.Item(string(dedup.OutcomeExisting))
	case item.Approved:
		local.Saved++
		p.metrics.Item(string(dedup.OutcomeAccepted))
		logger.Debug("item saved", "id", item.ID, "title", item.Title)
	default:
		local.Duplicates++
		p.metrics.Item(string(dedup.OutcomeRejectedDuplicate))
		logger.Debug("item rejected as near duplicate",
			"id", item.ID,
			"matched", decision.MatchedID,
			"similarity", decision.Similarity,
			"external", decision.ExternalNearDuplicate,
		)
	}
	return nil
}

// storeFailure counts a per-item store error and aborts when the store is gone.
func (p *IngestionPipeline) storeFailure(ctx context.Context, logger *slog.Logger, cause error, local *domain.RunStats) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	local.Errors++
	p.metrics.Item("error")
	logger.Warn("store operation failed", "error", cause)
	if err := p.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, errors.Join(cause, err))
	}
	return nil
}

func mergeRunStats(dst *domain.RunStats, src domain.RunStats) {
	dst.Saved += src.Saved
	dst.Existing += src.Existing
	dst.Duplicates += src.Duplicates
	dst.Invalid += src.Invalid
	dst.Errors += src.Errors
	dst.SourcesProcessed += src.SourcesProcessed
	dst.SourcesInvalid += src.SourcesInvalid
	dst.SourcesFailed += src.SourcesFailed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
