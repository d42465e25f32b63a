package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/testutil"
)

func TestSourceIDIsStable(t *testing.T) {
	t.Parallel()

	a := SourceID("", "https://example.com/rss")
	assert.Equal(t, a, SourceID("", " https://example.com/rss "))
	assert.NotEqual(t, a, SourceID("", "https://example.com/atom"))
	assert.Equal(t, "g1", SourceID("g1", "https://example.com/rss"))
}

func TestSyncKeepsHealthState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryStore()
	reg := testRegistry(store, nil)

	src := testSource("Example", "https://example.com/rss")
	require.NoError(t, reg.Sync(ctx, []domain.Source{src}))
	_, _, err := reg.RecordFailure(ctx, src, "timeout")
	require.NoError(t, err)

	src.Name = "Example renamed"
	require.NoError(t, reg.Sync(ctx, []domain.Source{src}))

	got, ok, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Example renamed", got.Name)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.True(t, got.Active)
}

func TestCircuitBreakerLatchesAndAlertsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryStore()
	notifier := &fakeNotifier{}
	reg := testRegistry(store, notifier)

	src := testSource("Flaky", "https://flaky.example.com/rss")
	require.NoError(t, reg.Sync(ctx, []domain.Source{src}))

	var tripped bool
	for i := 0; i < 3; i++ {
		current, _, err := store.GetSource(ctx, src.ID)
		require.NoError(t, err)
		_, tripped, err = reg.RecordFailure(ctx, current, "HEAD returned 503")
		require.NoError(t, err)
	}
	assert.True(t, tripped)

	got, _, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.ConsecutiveFailures)

	// a further failure on an open circuit changes nothing
	_, tripped, err = reg.RecordFailure(ctx, got, "still down")
	require.NoError(t, err)
	assert.False(t, tripped)
	got, _, err = store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ConsecutiveFailures)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Flaky", notifier.tripped[0].Name)
	assert.Equal(t, src.ID, notifier.tripped[0].ID)
	assert.Equal(t, "HEAD returned 503", notifier.tripped[0].LastError)
}

func TestConcurrentFailuresTripOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryStore()
	notifier := &fakeNotifier{}
	reg := testRegistry(store, notifier)

	src := testSource("Flaky", "https://flaky.example.com/rss")
	require.NoError(t, reg.Sync(ctx, []domain.Source{src}))
	for i := 0; i < 2; i++ {
		_, _, err := reg.RecordFailure(ctx, src, "timeout")
		require.NoError(t, err)
	}

	// ingestion and the health check both hold a snapshot taken while active
	snapshot, _, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.True(t, snapshot.Active)

	_, first, err := reg.RecordFailure(ctx, snapshot, "fetch failed")
	require.NoError(t, err)
	updated, second, err := reg.RecordFailure(ctx, snapshot, "HEAD returned 503")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.False(t, updated.Active)
	assert.Equal(t, 3, updated.ConsecutiveFailures)
	assert.Equal(t, 1, notifier.count())
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryStore()
	reg := testRegistry(store, nil)

	src := testSource("Example", "https://example.com/rss")
	require.NoError(t, reg.Sync(ctx, []domain.Source{src}))

	for i := 0; i < 2; i++ {
		_, _, err := reg.RecordFailure(ctx, src, "timeout")
		require.NoError(t, err)
	}
	current, _, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, 2, current.ConsecutiveFailures)

	require.NoError(t, reg.RecordSuccess(ctx, current))
	current, _, err = store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, current.ConsecutiveFailures)
	assert.True(t, current.Active)
}

func TestReactivate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryStore()
	reg := testRegistry(store, nil)

	src := testSource("Example", "https://example.com/rss")
	require.NoError(t, reg.Sync(ctx, []domain.Source{src}))
	for i := 0; i < 3; i++ {
		_, _, err := reg.RecordFailure(ctx, src, "timeout")
		require.NoError(t, err)
	}

	got, err := reg.Reactivate(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Zero(t, got.ConsecutiveFailures)

	_, err = reg.Reactivate(ctx, "missing")
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestActiveFiltersByNiche(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemoryStore()
	reg := testRegistry(store, nil)

	tech := testSource("Tech", "https://tech.example.com/rss")
	sport := testSource("Sport", "https://sport.example.com/rss")
	sport.Niche = "esportes"
	off := testSource("Off", "https://off.example.com/rss")
	off.Active = false
	require.NoError(t, reg.Sync(ctx, []domain.Source{tech, sport, off}))

	active, err := reg.Active(ctx, []string{"tecnologia"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Tech", active[0].Name)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
