package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"FeedRelay/internal/ports"
)

// Interval runs each registered job on its own ticker. Runs of the same job never overlap.
type Interval struct {
	location  *time.Location
	immediate bool

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

var _ ports.Scheduler = (*Interval)(nil)

// NewInterval builds a scheduler whose trigger times are reported in loc.
// When immediate is set every job also fires once on Start.
func NewInterval(loc *time.Location, immediate bool) *Interval {
	if loc == nil {
		loc = time.UTC
	}
	return &Interval{location: loc, immediate: immediate}
}

// Start registers job to fire every interval until ctx ends or Stop is called.
func (s *Interval) Start(ctx context.Context, every time.Duration, job func(context.Context, time.Time)) error {
	if job == nil {
		return nil
	}
	if every <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.mu.Lock()
	if s.stop == nil {
		s.stop = make(chan struct{})
	}
	stop := s.stop
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		if s.immediate {
			job(ctx, time.Now().In(s.location))
		}
		for {
			select {
			case t := <-ticker.C:
				job(ctx, t.In(s.location))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts every ticker and waits for running jobs, bounded by ctx.
func (s *Interval) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
