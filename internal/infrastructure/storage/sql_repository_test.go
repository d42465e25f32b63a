package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedRelay/internal/domain"
)

func openTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := OpenSQL(context.Background(), driverSQLite, filepath.Join(t.TempDir(), "feedrelay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleItem(id string, insertedAt int64) domain.NewsItem {
	return domain.NewsItem{
		ID:         id,
		Title:      "Title " + id,
		Summary:    "Summary " + id,
		Link:       "https://example.com/" + id,
		SourceName: "Example",
		Niche:      "tecnologia",
		Language:   "pt",
		InsertedAt: insertedAt,
		Approved:   true,
	}
}

func TestOpenSQLIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedrelay.db")
	for i := 0; i < 2; i++ {
		repo, err := OpenSQL(context.Background(), driverSQLite, path)
		require.NoError(t, err)
		require.NoError(t, repo.Ping(context.Background()))
		require.NoError(t, repo.Close())
	}
}

func TestOpenSQLRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "oracle", "x")
	require.Error(t, err)
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	item := sampleItem("a1", 100)
	item.SourcePublishedAt = domain.Int64(90)

	inserted, err := repo.Put(ctx, item)
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, repo.UpdateFields(ctx, "a1", domain.NewsPatch{
		Published:   domain.Bool(true),
		PublishedAt: domain.Int64(200),
		ExternalRef: domain.String("77"),
	}))

	again := sampleItem("a1", 300)
	again.Approved = false
	inserted, err = repo.Put(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, ok, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Approved)
	assert.True(t, got.Published)
	assert.Equal(t, int64(100), got.InsertedAt)
	require.NotNil(t, got.PublishedAt)
	assert.Equal(t, int64(200), *got.PublishedAt)
	require.NotNil(t, got.ExternalRef)
	assert.Equal(t, "77", *got.ExternalRef)
	assert.Nil(t, got.ExternalURL)
	require.NotNil(t, got.SourcePublishedAt)
	assert.Equal(t, int64(90), *got.SourcePublishedAt)

	items, err := repo.Scan(ctx, domain.NewsFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGetMissing(t *testing.T) {
	repo := openTestRepo(t)
	_, ok, err := repo.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateFieldsMissingRow(t *testing.T) {
	repo := openTestRepo(t)
	err := repo.UpdateFields(context.Background(), "absent", domain.NewsPatch{Duplicate: domain.Bool(true)})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, repo.UpdateFields(context.Background(), "absent", domain.NewsPatch{}))
}

func TestScanFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	old := sampleItem("old", 100)
	mid := sampleItem("mid", 200)
	mid.Approved = false
	mid.LocalNearDuplicate = true
	fresh := sampleItem("fresh", 300)
	published := sampleItem("pub", 250)
	published.Published = true
	for _, it := range []domain.NewsItem{old, mid, fresh, published} {
		_, err := repo.Put(ctx, it)
		require.NoError(t, err)
	}

	recent, err := repo.Scan(ctx, domain.NewsFilter{InsertedSince: 200, NewestFirst: true}, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "fresh", recent[0].ID)
	assert.Equal(t, "pub", recent[1].ID)

	queue, err := repo.Scan(ctx, domain.NewsFilter{
		Approved:    domain.Bool(true),
		Published:   domain.Bool(false),
		Duplicate:   domain.Bool(false),
		NewestFirst: true,
	}, 50)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "fresh", queue[0].ID)
	assert.Equal(t, "old", queue[1].ID)

	stale, err := repo.Scan(ctx, domain.NewsFilter{InsertedBefore: 250}, 0)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "old", stale[0].ID)
	assert.Equal(t, "mid", stale[1].ID)
	assert.True(t, stale[1].LocalNearDuplicate)
	assert.False(t, stale[1].Approved)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, err := repo.Put(ctx, sampleItem("gone", 1))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "gone"))
	require.NoError(t, repo.Delete(ctx, "gone"))

	_, ok, err := repo.Get(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSourceCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Unix(1_700_000_000, 0)

	src := domain.Source{ID: "s1", Name: "Example", FeedURL: "https://example.com/rss", Niche: "tecnologia", Active: true}
	require.NoError(t, repo.UpsertSource(ctx, src))

	got, tripped, err := repo.RecordSourceFailure(ctx, "s1", 3, "timeout", now)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.True(t, got.Active)
	assert.False(t, tripped)

	require.NoError(t, repo.ResetSourceFailures(ctx, "s1", now))
	got, _, err = repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConsecutiveFailures)
	assert.Empty(t, got.LastError)

	for i := 1; i <= 3; i++ {
		got, tripped, err = repo.RecordSourceFailure(ctx, "s1", 3, "timeout", now)
		require.NoError(t, err)
		assert.Equal(t, i, got.ConsecutiveFailures)
		assert.Equal(t, i == 3, tripped)
	}
	assert.False(t, got.Active)
	assert.Equal(t, "timeout", got.LastError)
	require.NotNil(t, got.LastCheckedAt)

	got, tripped, err = repo.RecordSourceFailure(ctx, "s1", 3, "again", now)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ConsecutiveFailures, "tripped counter is frozen")
	assert.False(t, tripped, "an already open circuit is not tripped again")

	require.NoError(t, repo.UpsertSource(ctx, src))
	got, _, err = repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.Active, "config sync must not re-enable a tripped source")
	assert.Equal(t, 3, got.ConsecutiveFailures)

	require.NoError(t, repo.SetSourceActive(ctx, "s1", true))
	got, _, err = repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 0, got.ConsecutiveFailures)
}

func TestListSourcesFilters(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	require.NoError(t, repo.UpsertSource(ctx, domain.Source{ID: "b", Name: "Beta", FeedURL: "https://b/rss", Niche: "esportes", Active: true}))
	require.NoError(t, repo.UpsertSource(ctx, domain.Source{ID: "a", Name: "Alpha", FeedURL: "https://a/rss", Niche: "saude", Active: true}))
	require.NoError(t, repo.UpsertSource(ctx, domain.Source{ID: "c", Name: "Gamma", FeedURL: "https://c/rss", Niche: "saude", Active: false}))

	all, err := repo.ListSources(ctx, domain.SourceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha", all[0].Name)

	active, err := repo.ListSources(ctx, domain.SourceFilter{Active: domain.Bool(true), Niches: []string{"saude"}})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	require.ErrorIs(t, repo.SetSourceActive(ctx, "missing", true), ErrNotFound)
}
