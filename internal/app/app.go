package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"FeedRelay/internal/config"
	"FeedRelay/internal/dedup"
	"FeedRelay/internal/domain"
	"FeedRelay/internal/infrastructure/feed"
	"FeedRelay/internal/infrastructure/plagiarism"
	"FeedRelay/internal/infrastructure/scheduler"
	"FeedRelay/internal/infrastructure/storage"
	"FeedRelay/internal/infrastructure/telegram"
	"FeedRelay/internal/infrastructure/wordpress"
	"FeedRelay/internal/logging"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
	"FeedRelay/internal/usecase"
)

// Store is a backend serving both repositories.
type Store interface {
	ports.NewsRepository
	ports.SourceRepository
	Close() error
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    Store
	registry *prometheus.Registry

	sources   *usecase.SourceRegistry
	ingestion *usecase.IngestionPipeline
	publish   *usecase.PublishSelector
	health    *usecase.HealthMonitor
	retention *usecase.RetentionSweeper
}

// OpenStore connects the configured backend.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, config.DriverPostgres:
		return storage.OpenSQL(ctx, cfg.Driver, cfg.DSN)
	case config.DriverMongo:
		return storage.OpenMongo(ctx, cfg.DSN, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// New opens the store, syncs the configured sources and builds every use case.
// Failing to reach the store is fatal.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a, err := NewWithStore(ctx, cfg, store, baseLogger)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return a, nil
}

// NewWithStore builds the application on an already open store.
func NewWithStore(ctx context.Context, cfg config.Config, store Store, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.Discard()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, policy)
	}

	sources := usecase.NewSourceRegistry(usecase.RegistryDeps{
		Repository:       store,
		Notifier:         notifier,
		Metrics:          m,
		Logger:           baseLogger.With("component", "sources"),
		FailureThreshold: cfg.Health.FailureThreshold,
	})
	if err := sources.Sync(ctx, sourcesFromConfig(cfg.Sources)); err != nil {
		return nil, err
	}

	fetcher := feed.NewFetcher(nil, feed.Options{
		MaxItems:      cfg.Ingestion.MaxItemsPerSource,
		Timeout:       cfg.Ingestion.FetchTimeout,
		UserAgent:     cfg.Ingestion.UserAgent,
		RespectRobots: cfg.Ingestion.RespectRobots,
		Retry:         policy,
	}, baseLogger.With("component", "feed"))

	engine := dedup.NewEngine(dedup.EngineDeps{
		Repository: store,
		Checker:    newChecker(cfg.Plagiarism),
		Retry:      policy,
		Config: dedup.Config{
			LocalThreshold: cfg.Dedup.LocalThreshold,
			Window:         cfg.Dedup.Window,
			WindowLimit:    cfg.Dedup.WindowLimit,
			CharThreshold:  cfg.Ingestion.CharThreshold,
		},
		Logger: baseLogger.With("component", "dedup"),
	})

	var publisher ports.Publisher
	if cfg.WordPress.Enabled() {
		publisher = wordpress.NewPublisher(cfg.WordPress.URL, cfg.WordPress.User, cfg.WordPress.AppPassword, cfg.Publish.Timeout)
	}

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		registry: reg,
		sources:  sources,
		ingestion: usecase.NewIngestionPipeline(usecase.IngestionDeps{
			Registry:   sources,
			Fetcher:    fetcher,
			Engine:     engine,
			Repository: store,
			Metrics:    m,
			Logger:     baseLogger.With("component", "ingestion"),
			Config: usecase.IngestionConfig{
				Niches:    cfg.Ingestion.Niches,
				ItemDelay: cfg.Ingestion.ItemDelay,
				Workers:   cfg.Ingestion.Workers,
				Normalize: usecase.NormalizeOptions{
					CharThreshold:   cfg.Ingestion.CharThreshold,
					SummaryWords:    cfg.Ingestion.SummaryWords,
					MaxTextLength:   cfg.Ingestion.MaxTextLength,
					DefaultLanguage: cfg.Ingestion.DefaultLanguage,
				},
			},
		}),
		publish: usecase.NewPublishSelector(usecase.PublishDeps{
			Repository: store,
			Publisher:  publisher,
			Retry:      policy,
			Metrics:    m,
			Logger:     baseLogger.With("component", "publish"),
			Config: usecase.PublishConfig{
				BatchSize:          cfg.Publish.BatchSize,
				Delay:              cfg.Publish.Delay,
				Timeout:            cfg.Publish.Timeout,
				PublishedScanLimit: cfg.Publish.PublishedScanLimit,
				Threshold:          cfg.Dedup.LocalThreshold,
				TitleMaxLength:     cfg.Publish.TitleMaxLength,
				ExcerptMaxLength:   cfg.Publish.ExcerptMaxLength,
				Category:           cfg.WordPress.CategoryFor,
			},
		}),
		health: usecase.NewHealthMonitor(usecase.HealthDeps{
			Registry: sources,
			Fetcher:  fetcher,
			Metrics:  m,
			Logger:   baseLogger.With("component", "health"),
			Workers:  cfg.Health.Workers,
			Timeout:  cfg.Health.Timeout,
		}),
		retention: usecase.NewRetentionSweeper(usecase.RetentionDeps{
			Repository: store,
			Metrics:    m,
			Logger:     baseLogger.With("component", "retention"),
			MaxAge:     cfg.Retention.MaxAge,
			BatchSize:  cfg.Retention.BatchSize,
		}),
	}, nil
}

func newChecker(cfg config.PlagiarismConfig) ports.PlagiarismChecker {
	switch cfg.Provider {
	case config.PlagiarismCopyscape:
		return plagiarism.NewCopyscape(cfg.Copyscape.Endpoint, cfg.Copyscape.User, cfg.Copyscape.Key, cfg.Timeout)
	case config.PlagiarismHTTP:
		return plagiarism.NewHTTPChecker(cfg.HTTP.Endpoint, cfg.HTTP.APIKey, cfg.Timeout)
	default:
		return nil
	}
}

func sourcesFromConfig(cfgs []config.SourceConfig) []domain.Source {
	out := make([]domain.Source, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, domain.Source{
			ID:      usecase.SourceID(c.ID, c.FeedURL),
			Name:    c.Name,
			FeedURL: c.FeedURL,
			Niche:   c.Niche,
			Active:  c.IsActive(),
		})
	}
	return out
}

// RunIngestion fetches every active source once.
func (a *Application) RunIngestion(ctx context.Context) (domain.RunStats, error) {
	return a.ingestion.Run(ctx)
}

// RunPublish publishes one batch of approved items.
func (a *Application) RunPublish(ctx context.Context) (domain.PublishStats, error) {
	return a.publish.Run(ctx)
}

// RunHealthCheck probes every active source once.
func (a *Application) RunHealthCheck(ctx context.Context) (domain.HealthReport, error) {
	return a.health.Run(ctx)
}

// RunRetentionSweep evicts expired items.
func (a *Application) RunRetentionSweep(ctx context.Context) (domain.SweepReport, error) {
	return a.retention.Run(ctx)
}

// ListSources returns every registered source with its health view.
func (a *Application) ListSources(ctx context.Context) ([]domain.Source, error) {
	return a.sources.List(ctx)
}

// EnableSource re-activates a source tripped by the circuit breaker.
func (a *Application) EnableSource(ctx context.Context, id string) (domain.Source, error) {
	return a.sources.Reactivate(ctx, id)
}

// Ping checks the store.
func (a *Application) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Gatherer exposes the metrics registry.
func (a *Application) Gatherer() prometheus.Gatherer {
	return a.registry
}

// Scheduler builds the serve-mode scheduler with every job at its configured interval.
func (a *Application) Scheduler() *usecase.Scheduler {
	driver := scheduler.NewInterval(a.cfg.Scheduler.Location(), true)
	logger := a.logger.With("component", "scheduler")
	return usecase.NewScheduler(driver, logger,
		usecase.Job{Name: "ingest", Every: a.cfg.Scheduler.IngestEvery, Run: func(ctx context.Context) error {
			_, err := a.RunIngestion(ctx)
			return err
		}},
		usecase.Job{Name: "publish", Every: a.cfg.Scheduler.PublishEvery, Run: func(ctx context.Context) error {
			_, err := a.RunPublish(ctx)
			return err
		}},
		usecase.Job{Name: "health", Every: a.cfg.Scheduler.HealthEvery, Run: func(ctx context.Context) error {
			_, err := a.RunHealthCheck(ctx)
			return err
		}},
		usecase.Job{Name: "sweep", Every: a.cfg.Scheduler.SweepEvery, Run: func(ctx context.Context) error {
			_, err := a.RunRetentionSweep(ctx)
			return err
		}},
	)
}

// Config returns the configuration the application was built with.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Logger returns the base logger components derive from.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Close releases the store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

