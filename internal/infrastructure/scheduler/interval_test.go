package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalFiresImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()

	s := NewInterval(time.UTC, true)
	var runs atomic.Int32
	require.NoError(t, s.Start(context.Background(), 10*time.Millisecond, func(context.Context, time.Time) {
		runs.Add(1)
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestIntervalStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewInterval(nil, false)
	var runs atomic.Int32
	require.NoError(t, s.Start(ctx, time.Hour, func(context.Context, time.Time) { runs.Add(1) }))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.Zero(t, runs.Load())
}

func TestIntervalRejectsNonPositiveInterval(t *testing.T) {
	t.Parallel()

	s := NewInterval(time.UTC, false)
	require.Error(t, s.Start(context.Background(), 0, func(context.Context, time.Time) {}))
	require.NoError(t, s.Start(context.Background(), time.Second, nil))
}
