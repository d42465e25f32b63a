package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := Do(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRunPropagatesFinalError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Run(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "exhausted after 3 attempts")
}

func TestPermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Run(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	require.ErrorIs(t, err, errFlaky)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Run(ctx, Policy{MaxRetries: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, p.backoff(0))
	assert.Equal(t, 2*time.Second, p.backoff(1))
	assert.Equal(t, 3*time.Second, p.backoff(2))
	assert.Equal(t, time.Duration(0), Policy{}.backoff(4))
}

func TestZeroRetriesStillRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Run(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
