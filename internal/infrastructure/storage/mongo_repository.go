package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
)

// MongoRepository keeps items and sources in two MongoDB collections.
type MongoRepository struct {
	client  *mongo.Client
	news    *mongo.Collection
	sources *mongo.Collection
}

var (
	_ ports.NewsRepository   = (*MongoRepository)(nil)
	_ ports.SourceRepository = (*MongoRepository)(nil)
)

type newsDocument struct {
	ID                    string  `bson:"_id,omitempty"`
	Title                 string  `bson:"title"`
	Summary               string  `bson:"summary"`
	Description           string  `bson:"description"`
	Link                  string  `bson:"link"`
	SourceName            string  `bson:"source_name"`
	Niche                 string  `bson:"niche"`
	Language              string  `bson:"language"`
	SourcePublishedAt     *int64  `bson:"source_published_at,omitempty"`
	InsertedAt            int64   `bson:"inserted_at"`
	Approved              bool    `bson:"approved"`
	LocalNearDuplicate    bool    `bson:"local_near_duplicate"`
	ExternalNearDuplicate bool    `bson:"external_near_duplicate"`
	Duplicate             bool    `bson:"duplicate"`
	Published             bool    `bson:"published"`
	PublishedAt           *int64  `bson:"published_at,omitempty"`
	ExternalRef           *string `bson:"external_ref,omitempty"`
	ExternalURL           *string `bson:"external_url,omitempty"`
}

type sourceDocument struct {
	ID                  string `bson:"_id"`
	Name                string `bson:"name"`
	FeedURL             string `bson:"feed_url"`
	Niche               string `bson:"niche"`
	Active              bool   `bson:"active"`
	ConsecutiveFailures int    `bson:"consecutive_failures"`
	LastError           string `bson:"last_error"`
	LastCheckedAt       *int64 `bson:"last_checked_at,omitempty"`
}

// OpenMongo connects, pings and ensures indexes.
func OpenMongo(ctx context.Context, uri, database string) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	repo := &MongoRepository{
		client:  client,
		news:    db.Collection(newsTable),
		sources: db.Collection(sourcesTable),
	}

	if err := repo.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoRepository) createIndexes(ctx context.Context) error {
	_, err := m.news.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "inserted_at", Value: 1}}},
		{Keys: bson.D{
			{Key: "approved", Value: 1},
			{Key: "published", Value: 1},
			{Key: "duplicate", Value: 1},
			{Key: "inserted_at", Value: -1},
		}},
	})
	if err != nil {
		return fmt.Errorf("create news indexes: %w", err)
	}

	_, err = m.sources.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "niche", Value: 1}, {Key: "active", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create source indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Get loads one item by content id.
func (m *MongoRepository) Get(ctx context.Context, id string) (domain.NewsItem, bool, error) {
	var doc newsDocument
	err := m.news.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.NewsItem{}, false, nil
	}
	if err != nil {
		return domain.NewsItem{}, false, fmt.Errorf("get item %s: %w", id, err)
	}
	return doc.toDomain(), true, nil
}

// Put inserts the item only when its id is new.
func (m *MongoRepository) Put(ctx context.Context, item domain.NewsItem) (bool, error) {
	doc := newsFromDomain(item)
	doc.ID = ""

	res, err := m.news.UpdateOne(ctx,
		bson.M{"_id": item.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("put item %s: %w", item.ID, err)
	}
	return res.UpsertedCount == 1, nil
}

// UpdateFields applies a partial update to one item.
func (m *MongoRepository) UpdateFields(ctx context.Context, id string, patch domain.NewsPatch) error {
	set := newsPatchDoc(patch)
	if len(set) == 0 {
		return nil
	}

	res, err := m.news.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update item %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update item %s: %w", id, ErrNotFound)
	}
	return nil
}

// Scan lists items matching the filter.
func (m *MongoRepository) Scan(ctx context.Context, f domain.NewsFilter, limit int) ([]domain.NewsItem, error) {
	direction := 1
	if f.NewestFirst {
		direction = -1
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "inserted_at", Value: direction},
		{Key: "_id", Value: direction},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.news.Find(ctx, newsFilterDoc(f), opts)
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []newsDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	items := make([]domain.NewsItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toDomain())
	}
	return items, nil
}

// Delete removes one item; a missing id is not an error.
func (m *MongoRepository) Delete(ctx context.Context, id string) error {
	if _, err := m.news.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// ListSources returns sources ordered by name.
func (m *MongoRepository) ListSources(ctx context.Context, f domain.SourceFilter) ([]domain.Source, error) {
	cursor, err := m.sources.Find(ctx, sourceFilterDoc(f),
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sourceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	out := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

// GetSource loads one source.
func (m *MongoRepository) GetSource(ctx context.Context, id string) (domain.Source, bool, error) {
	var doc sourceDocument
	err := m.sources.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Source{}, false, nil
	}
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("get source %s: %w", id, err)
	}
	return doc.toDomain(), true, nil
}

// UpsertSource syncs configuration fields; health state of an existing source is kept.
func (m *MongoRepository) UpsertSource(ctx context.Context, src domain.Source) error {
	_, err := m.sources.UpdateOne(ctx,
		bson.M{"_id": src.ID},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.D{
				{Key: "name", Value: src.Name},
				{Key: "feed_url", Value: src.FeedURL},
				{Key: "niche", Value: src.Niche},
				{Key: "consecutive_failures", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$consecutive_failures", 0}}}},
				{Key: "last_error", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$last_error", ""}}}},
				{Key: "active", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$ifNull", Value: bson.A{"$active", true}}},
					src.Active,
				}}}},
			}}},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return nil
}

// RecordSourceFailure increments and, at threshold, deactivates in a single
// pipeline update so concurrent probes cannot lose increments.
func (m *MongoRepository) RecordSourceFailure(ctx context.Context, id string, threshold int, reason string, at time.Time) (domain.Source, bool, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "consecutive_failures", Value: bson.D{{Key: "$add", Value: bson.A{"$consecutive_failures", 1}}}},
			{Key: "last_error", Value: reason},
			{Key: "last_checked_at", Value: at.Unix()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "active", Value: bson.D{{Key: "$lt", Value: bson.A{"$consecutive_failures", threshold}}}},
		}}},
	}

	var doc sourceDocument
	err := m.sources.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "active": true},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		src, ok, getErr := m.GetSource(ctx, id)
		if getErr != nil {
			return domain.Source{}, false, getErr
		}
		if !ok {
			return domain.Source{}, false, fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return src, false, nil
	}
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("record failure %s: %w", id, err)
	}
	src := doc.toDomain()
	return src, !src.Active, nil
}

// ResetSourceFailures clears the counter.
func (m *MongoRepository) ResetSourceFailures(ctx context.Context, id string, at time.Time) error {
	res, err := m.sources.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"consecutive_failures": 0,
		"last_error":           "",
		"last_checked_at":      at.Unix(),
	}})
	if err != nil {
		return fmt.Errorf("reset failures %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetSourceActive flips the circuit by hand. Activating also clears the counter.
func (m *MongoRepository) SetSourceActive(ctx context.Context, id string, active bool) error {
	set := bson.M{"active": active}
	if active {
		set["consecutive_failures"] = 0
		set["last_error"] = ""
	}
	res, err := m.sources.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set active %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func newsFilterDoc(f domain.NewsFilter) bson.M {
	filter := bson.M{}
	inserted := bson.M{}
	if f.InsertedSince > 0 {
		inserted["$gte"] = f.InsertedSince
	}
	if f.InsertedBefore > 0 {
		inserted["$lt"] = f.InsertedBefore
	}
	if len(inserted) > 0 {
		filter["inserted_at"] = inserted
	}
	if f.Approved != nil {
		filter["approved"] = *f.Approved
	}
	if f.Published != nil {
		filter["published"] = *f.Published
	}
	if f.Duplicate != nil {
		filter["duplicate"] = *f.Duplicate
	}
	return filter
}

func sourceFilterDoc(f domain.SourceFilter) bson.M {
	filter := bson.M{}
	if f.Active != nil {
		filter["active"] = *f.Active
	}
	if len(f.Niches) > 0 {
		filter["niche"] = bson.M{"$in": f.Niches}
	}
	return filter
}

func newsPatchDoc(p domain.NewsPatch) bson.M {
	set := bson.M{}
	if p.Published != nil {
		set["published"] = *p.Published
	}
	if p.PublishedAt != nil {
		set["published_at"] = *p.PublishedAt
	}
	if p.ExternalRef != nil {
		set["external_ref"] = *p.ExternalRef
	}
	if p.ExternalURL != nil {
		set["external_url"] = *p.ExternalURL
	}
	if p.Duplicate != nil {
		set["duplicate"] = *p.Duplicate
	}
	return set
}

func newsFromDomain(it domain.NewsItem) newsDocument {
	return newsDocument{
		ID:                    it.ID,
		Title:                 it.Title,
		Summary:               it.Summary,
		Description:           it.Description,
		Link:                  it.Link,
		SourceName:            it.SourceName,
		Niche:                 it.Niche,
		Language:              it.Language,
		SourcePublishedAt:     it.SourcePublishedAt,
		InsertedAt:            it.InsertedAt,
		Approved:              it.Approved,
		LocalNearDuplicate:    it.LocalNearDuplicate,
		ExternalNearDuplicate: it.ExternalNearDuplicate,
		Duplicate:             it.Duplicate,
		Published:             it.Published,
		PublishedAt:           it.PublishedAt,
		ExternalRef:           it.ExternalRef,
		ExternalURL:           it.ExternalURL,
	}
}

func (d newsDocument) toDomain() domain.NewsItem {
	return domain.NewsItem{
		ID:                    d.ID,
		Title:                 d.Title,
		Summary:               d.Summary,
		Description:           d.Description,
		Link:                  d.Link,
		SourceName:            d.SourceName,
		Niche:                 d.Niche,
		Language:              d.Language,
		SourcePublishedAt:     d.SourcePublishedAt,
		InsertedAt:            d.InsertedAt,
		Approved:              d.Approved,
		LocalNearDuplicate:    d.LocalNearDuplicate,
		ExternalNearDuplicate: d.ExternalNearDuplicate,
		Duplicate:             d.Duplicate,
		Published:             d.Published,
		PublishedAt:           d.PublishedAt,
		ExternalRef:           d.ExternalRef,
		ExternalURL:           d.ExternalURL,
	}
}

func (d sourceDocument) toDomain() domain.Source {
	return domain.Source{
		ID:                  d.ID,
		Name:                d.Name,
		FeedURL:             d.FeedURL,
		Niche:               d.Niche,
		Active:              d.Active,
		ConsecutiveFailures: d.ConsecutiveFailures,
		LastError:           d.LastError,
		LastCheckedAt:       d.LastCheckedAt,
	}
}
