// Package httpapi exposes health, metrics and manual job triggers over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/usecase"
)

// Runner is the application surface the API drives.
type Runner interface {
	RunIngestion(ctx context.Context) (domain.RunStats, error)
	RunPublish(ctx context.Context) (domain.PublishStats, error)
	RunHealthCheck(ctx context.Context) (domain.HealthReport, error)
	RunRetentionSweep(ctx context.Context) (domain.SweepReport, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
	EnableSource(ctx context.Context, id string) (domain.Source, error)
	Ping(ctx context.Context) error
}

// Server is the ops HTTP API.
type Server struct {
	runner Runner
	router *gin.Engine
	logger *slog.Logger
}

// NewServer builds the router. gatherer backs /metrics.
func NewServer(runner Runner, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{runner: runner, router: router, logger: logger}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/sources", s.handleSources)
	router.POST("/sources/:id/enable", s.handleEnableSource)

	runs := router.Group("/runs")
	{
		runs.POST("/ingest", s.handleIngest)
		runs.POST("/publish", s.handlePublish)
		runs.POST("/health", s.handleHealth)
		runs.POST("/sweep", s.handleSweep)
	}

	return s
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.runner.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSources(c *gin.Context) {
	sources, err := s.runner.ListSources(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, newSourceView(src))
	}
	c.JSON(http.StatusOK, gin.H{"sources": views, "count": len(views)})
}

func (s *Server) handleEnableSource(c *gin.Context) {
	src, err := s.runner.EnableSource(c.Request.Context(), c.Param("id"))
	if errors.Is(err, usecase.ErrUnknownSource) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newSourceView(src))
}

func (s *Server) handleIngest(c *gin.Context) {
	stats, err := s.runner.RunIngestion(c.Request.Context())
	respond(c, stats, err)
}

func (s *Server) handlePublish(c *gin.Context) {
	stats, err := s.runner.RunPublish(c.Request.Context())
	respond(c, stats, err)
}

func (s *Server) handleHealth(c *gin.Context) {
	report, err := s.runner.RunHealthCheck(c.Request.Context())
	respond(c, report, err)
}

func (s *Server) handleSweep(c *gin.Context) {
	report, err := s.runner.RunRetentionSweep(c.Request.Context())
	respond(c, report, err)
}

// respond always returns the partial result; a fatal error turns it into a 500.
func respond(c *gin.Context, result any, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"result": result, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

type sourceView struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	FeedURL             string `json:"feed_url"`
	Niche               string `json:"niche"`
	Active              bool   `json:"active"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	LastCheckedAt       *int64 `json:"last_checked_at,omitempty"`
}

func newSourceView(src domain.Source) sourceView {
	return sourceView{
		ID:                  src.ID,
		Name:                src.Name,
		FeedURL:             src.FeedURL,
		Niche:               src.Niche,
		Active:              src.Active,
		ConsecutiveFailures: src.ConsecutiveFailures,
		LastError:           src.LastError,
		LastCheckedAt:       src.LastCheckedAt,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
