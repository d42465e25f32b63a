package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/ports"
)

// RetentionDeps wires the retention sweeper.
type RetentionDeps struct {
	Repository ports.NewsRepository
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
	MaxAge     time.Duration
	BatchSize  int
}

// RetentionSweeper evicts items older than MaxAge regardless of publish state.
type RetentionSweeper struct {
	repo      ports.NewsRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	maxAge    time.Duration
	batchSize int
}

// NewRetentionSweeper constructs the sweeper.
func NewRetentionSweeper(deps RetentionDeps) *RetentionSweeper {
	s := &RetentionSweeper{
		repo:      deps.Repository,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		maxAge:    deps.MaxAge,
		batchSize: deps.BatchSize,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxAge <= 0 {
		s.maxAge = 7 * 24 * time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 500
	}
	return s
}

// Run deletes expired items page by page until nothing expired remains.
func (s *RetentionSweeper) Run(ctx context.Context) (domain.SweepReport, error) {
	start := s.now()
	var report domain.SweepReport

	err := s.sweep(ctx, start.Add(-s.maxAge).Unix(), &report)
	report.Duration = s.now().Sub(start)
	s.metrics.Deleted(report.Deleted)
	s.metrics.Run("sweep", report.Duration, err)

	s.logger.Info("retention sweep finished",
		"deleted", report.Deleted,
		"errors", report.Errors,
		"duration", report.Duration,
	)
	return report, err
}

func (s *RetentionSweeper) sweep(ctx context.Context, cutoff int64, report *domain.SweepReport) error {
	filter := domain.NewsFilter{InsertedBefore: cutoff}
	for {
		page, err := s.repo.Scan(ctx, filter, s.batchSize)
		if err != nil {
			return fmt.Errorf("scan expired items: %w", err)
		}

		deleted := 0
		for _, item := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.repo.Delete(ctx, item.ID); err != nil {
				report.Errors++
				s.logger.Warn("delete expired item", "id", item.ID, "error", err)
				continue
			}
			deleted++
		}
		report.Deleted += deleted

		if len(page) < s.batchSize || deleted == 0 {
			return nil
		}
	}
}
