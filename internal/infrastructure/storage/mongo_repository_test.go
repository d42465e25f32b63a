package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"FeedRelay/internal/domain"
)

func TestNewsFilterDoc(t *testing.T) {
	t.Parallel()

	assert.Empty(t, newsFilterDoc(domain.NewsFilter{}))

	doc := newsFilterDoc(domain.NewsFilter{
		InsertedSince:  10,
		InsertedBefore: 20,
		Approved:       domain.Bool(true),
		Published:      domain.Bool(false),
		Duplicate:      domain.Bool(false),
	})
	assert.Equal(t, bson.M{
		"inserted_at": bson.M{"$gte": int64(10), "$lt": int64(20)},
		"approved":    true,
		"published":   false,
		"duplicate":   false,
	}, doc)
}

func TestSourceFilterDoc(t *testing.T) {
	t.Parallel()

	doc := sourceFilterDoc(domain.SourceFilter{Active: domain.Bool(true), Niches: []string{"saude"}})
	assert.Equal(t, bson.M{"active": true, "niche": bson.M{"$in": []string{"saude"}}}, doc)
}

func TestNewsPatchDoc(t *testing.T) {
	t.Parallel()

	assert.Empty(t, newsPatchDoc(domain.NewsPatch{}))
	doc := newsPatchDoc(domain.NewsPatch{Published: domain.Bool(true), ExternalURL: domain.String("https://blog/p/1")})
	assert.Equal(t, bson.M{"published": true, "external_url": "https://blog/p/1"}, doc)
}

func TestNewsDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	item := domain.NewsItem{
		ID:          "abc",
		Title:       "Title",
		InsertedAt:  5,
		Approved:    true,
		PublishedAt: domain.Int64(9),
		ExternalRef: domain.String("12"),
	}
	assert.Equal(t, item, newsFromDomain(item).toDomain())
}

const mongoURIEnv = "FEEDRELAY_TEST_MONGO_URI"

// openMongoTestRepo connects to the server named by FEEDRELAY_TEST_MONGO_URI
// using a throwaway database.
func openMongoTestRepo(t *testing.T) *MongoRepository {
	t.Helper()
	uri := os.Getenv(mongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set", mongoURIEnv)
	}

	ctx := context.Background()
	name := "feedrelay_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	repo, err := OpenMongo(ctx, uri, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.client.Database(name).Drop(context.Background())
		_ = repo.Close()
	})
	return repo
}

func TestMongoSourceCircuitBreaker(t *testing.T) {
	repo := openMongoTestRepo(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	src := domain.Source{ID: "s1", Name: "Example", FeedURL: "https://example.com/rss", Niche: "tecnologia", Active: true}
	require.NoError(t, repo.UpsertSource(ctx, src))

	got, ok, err := repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Active)
	assert.Zero(t, got.ConsecutiveFailures)

	for i := 1; i <= 3; i++ {
		var tripped bool
		got, tripped, err = repo.RecordSourceFailure(ctx, "s1", 3, "timeout", now)
		require.NoError(t, err)
		assert.Equal(t, i, got.ConsecutiveFailures)
		assert.Equal(t, i == 3, tripped)
	}
	assert.False(t, got.Active)
	assert.Equal(t, "timeout", got.LastError)
	require.NotNil(t, got.LastCheckedAt)
	assert.Equal(t, now.Unix(), *got.LastCheckedAt)

	got, tripped, err := repo.RecordSourceFailure(ctx, "s1", 3, "again", now)
	require.NoError(t, err)
	assert.False(t, tripped)
	assert.Equal(t, 3, got.ConsecutiveFailures)
	assert.Equal(t, "timeout", got.LastError)

	src.Name = "Example renamed"
	require.NoError(t, repo.UpsertSource(ctx, src))
	got, _, err = repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Example renamed", got.Name)
	assert.False(t, got.Active, "config sync must not re-enable a tripped source")
	assert.Equal(t, 3, got.ConsecutiveFailures)

	require.NoError(t, repo.SetSourceActive(ctx, "s1", true))
	got, _, err = repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Zero(t, got.ConsecutiveFailures)

	_, _, err = repo.RecordSourceFailure(ctx, "missing", 3, "timeout", now)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMongoUpsertSourceKeepsCounter(t *testing.T) {
	repo := openMongoTestRepo(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	src := domain.Source{ID: "s2", Name: "Beta", FeedURL: "https://b/rss", Niche: "saude", Active: true}
	require.NoError(t, repo.UpsertSource(ctx, src))
	_, _, err := repo.RecordSourceFailure(ctx, "s2", 3, "503", now)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertSource(ctx, src))
	got, _, err := repo.GetSource(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.Equal(t, "503", got.LastError)
	assert.True(t, got.Active)

	src.Active = false
	require.NoError(t, repo.UpsertSource(ctx, src))
	got, _, err = repo.GetSource(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := repo.ListSources(ctx, domain.SourceFilter{Active: domain.Bool(true)})
	require.NoError(t, err)
	assert.Empty(t, active)
}
