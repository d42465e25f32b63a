package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/ports"
)

// ErrUnknownSource is returned when an operation names a source that is not registered.
var ErrUnknownSource = errors.New("unknown source")

// sourceNamespace seeds the UUIDv5 ids derived from feed URLs.
var sourceNamespace = uuid.MustParse("6f1f3c1e-8d3b-5b8e-9a53-2c4c1f0e7a10")

// SourceID returns the configured id, or a stable id derived from the feed URL.
func SourceID(configured, feedURL string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}
	return uuid.NewSHA1(sourceNamespace, []byte(strings.TrimSpace(feedURL))).String()
}

// RegistryDeps wires the source registry.
type RegistryDeps struct {
	Repository       ports.SourceRepository
	Notifier         ports.Notifier
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
	Now              func() time.Time
	FailureThreshold int
}

// SourceRegistry owns the configured sources and their circuit-breaker state.
type SourceRegistry struct {
	repo      ports.SourceRepository
	notifier  ports.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	threshold int
}

// NewSourceRegistry constructs the registry. A threshold below one becomes three.
func NewSourceRegistry(deps RegistryDeps) *SourceRegistry {
	r := &SourceRegistry{
		repo:      deps.Repository,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		threshold: deps.FailureThreshold,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.threshold < 1 {
		r.threshold = 3
	}
	return r
}

// Threshold is the number of consecutive failures that opens a source's circuit.
func (r *SourceRegistry) Threshold() int {
	return r.threshold
}

// Sync upserts the configured sources. Existing health state is kept.
func (r *SourceRegistry) Sync(ctx context.Context, sources []domain.Source) error {
	for _, src := range sources {
		if src.ID == "" {
			src.ID = SourceID("", src.FeedURL)
		}
		if err := r.repo.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("sync source %s: %w", src.Name, err)
		}
	}
	return nil
}

// Active lists active sources, restricted to niches when any are given.
func (r *SourceRegistry) Active(ctx context.Context, niches []string) ([]domain.Source, error) {
	sources, err := r.repo.ListSources(ctx, domain.SourceFilter{Active: domain.Bool(true), Niches: niches})
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	return sources, nil
}

// List returns every registered source with its health view.
func (r *SourceRegistry) List(ctx context.Context) ([]domain.Source, error) {
	sources, err := r.repo.ListSources(ctx, domain.SourceFilter{})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// Reactivate closes a tripped circuit and clears the failure counter.
func (r *SourceRegistry) Reactivate(ctx context.Context, id string) (domain.Source, error) {
	if _, ok, err := r.repo.GetSource(ctx, id); err != nil {
		return domain.Source{}, fmt.Errorf("load source %s: %w", id, err)
	} else if !ok {
		return domain.Source{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}

	if err := r.repo.SetSourceActive(ctx, id, true); err != nil {
		return domain.Source{}, fmt.Errorf("activate source %s: %w", id, err)
	}
	src, _, err := r.repo.GetSource(ctx, id)
	if err != nil {
		return domain.Source{}, fmt.Errorf("reload source %s: %w", id, err)
	}
	r.logger.Info("source reactivated", "source_id", id, "source", src.Name)
	return src, nil
}

// RecordFailure bumps the shared failure counter. tripped is true when this call
// opened the circuit.
func (r *SourceRegistry) RecordFailure(ctx context.Context, src domain.Source, reason string) (domain.Source, bool, error) {
	updated, tripped, err := r.repo.RecordSourceFailure(ctx, src.ID, r.threshold, reason, r.now())
	if err != nil {
		return src, false, fmt.Errorf("record failure of %s: %w", src.ID, err)
	}

	if tripped {
		r.metrics.Tripped()
		r.logger.Warn("source deactivated",
			"source_id", src.ID,
			"source", src.Name,
			"failures", updated.ConsecutiveFailures,
			"reason", reason,
		)
		r.alert(ctx, updated)
	}
	return updated, tripped, nil
}

// RecordSuccess resets the counter of a source that had failures.
func (r *SourceRegistry) RecordSuccess(ctx context.Context, src domain.Source) error {
	if src.ConsecutiveFailures == 0 {
		return nil
	}
	if err := r.repo.ResetSourceFailures(ctx, src.ID, r.now()); err != nil {
		return fmt.Errorf("reset failures of %s: %w", src.ID, err)
	}
	return nil
}

func (r *SourceRegistry) alert(ctx context.Context, src domain.Source) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.SourceTripped(ctx, src, r.threshold); err != nil {
		r.logger.Warn("trip alert failed", "source_id", src.ID, "error", err)
	}
}
