package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/ports"
)

// HealthDeps wires the health monitor.
type HealthDeps struct {
	Registry *SourceRegistry
	Fetcher  ports.FeedFetcher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
	Workers  int
	Timeout  time.Duration
}

// HealthMonitor probes active sources and opens the circuit of chronic failures.
type HealthMonitor struct {
	registry *SourceRegistry
	fetcher  ports.FeedFetcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	workers  int
	timeout  time.Duration
}

// NewHealthMonitor constructs the monitor.
func NewHealthMonitor(deps HealthDeps) *HealthMonitor {
	m := &HealthMonitor{
		registry: deps.Registry,
		fetcher:  deps.Fetcher,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		workers:  deps.Workers,
		timeout:  deps.Timeout,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.workers < 1 {
		m.workers = 1
	}
	return m
}

// Run probes every active source once. Inactive sources are skipped so a tripped
// counter stays frozen until the source is re-enabled.
func (m *HealthMonitor) Run(ctx context.Context) (domain.HealthReport, error) {
	start := m.now()
	var report domain.HealthReport

	err := m.run(ctx, &report)
	report.Duration = m.now().Sub(start)
	sort.Strings(report.Tripped)
	m.metrics.Run("health", report.Duration, err)

	m.logger.Info("health check finished",
		"healthy", report.Healthy,
		"unhealthy", report.Unhealthy,
		"skipped", report.Skipped,
		"tripped", len(report.Tripped),
		"duration", report.Duration,
	)
	return report, err
}

func (m *HealthMonitor) run(ctx context.Context, report *domain.HealthReport) error {
	sources, err := m.registry.List(ctx)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, src := range sources {
		src := src
		if !src.Active {
			report.Skipped++
			m.metrics.Probe("skipped")
			continue
		}
		g.Go(func() error {
			healthy, tripped, err := m.check(gctx, src)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if healthy {
				report.Healthy++
			} else {
				report.Unhealthy++
			}
			if tripped {
				report.Tripped = append(report.Tripped, src.ID)
			}
			return nil
		})
	}
	return g.Wait()
}

// check probes src and updates its counter. The error is reserved for cancellation.
func (m *HealthMonitor) check(ctx context.Context, src domain.Source) (healthy, tripped bool, err error) {
	logger := m.logger.With("source_id", src.ID, "source", src.Name)

	probeCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	probeErr := m.fetcher.Probe(probeCtx, src.FeedURL)
	if probeErr == nil {
		m.metrics.Probe("healthy")
		if err := m.registry.RecordSuccess(ctx, src); err != nil {
			logger.Warn("reset source failures", "error", err)
		}
		return true, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, false, ctxErr
	}

	m.metrics.Probe("unhealthy")
	updated, tripped, err := m.registry.RecordFailure(ctx, src, probeErr.Error())
	if err != nil {
		logger.Warn("record source failure", "error", err)
		return false, false, nil
	}
	logger.Warn("probe failed",
		"failures", updated.ConsecutiveFailures,
		"threshold", m.registry.Threshold(),
		"error", probeErr,
	)
	return false, tripped, nil
}

