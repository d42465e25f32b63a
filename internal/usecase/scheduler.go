package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"FeedRelay/internal/ports"
)

// Job is a recurring unit of work for serve mode.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler wires the interval driver with the use-case jobs.
type Scheduler struct {
	driver ports.Scheduler
	jobs   []Job
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, jobs: jobs, logger: logger}
}

// Start registers every job with a positive interval.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	for _, job := range s.jobs {
		job := job
		if job.Every <= 0 || job.Run == nil {
			s.logger.Info("job disabled", "job", job.Name)
			continue
		}
		err := s.driver.Start(ctx, job.Every, func(ctx context.Context, trigger time.Time) {
			s.logger.Debug("job triggered", "job", job.Name, "at", trigger)
			if err := job.Run(ctx); err != nil {
				s.logger.Error("job failed", "job", job.Name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		s.logger.Info("job scheduled", "job", job.Name, "every", job.Every)
	}
	return nil
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
