package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"

	newsTable    = "news_items"
	sourcesTable = "sources"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("not found")

var newsColumns = []string{
	"id", "title", "summary", "description", "link", "source_name", "niche", "language",
	"source_published_at", "inserted_at",
	"approved", "local_near_duplicate", "external_near_duplicate", "duplicate",
	"published", "published_at", "external_ref", "external_url",
}

// SQLRepository persists items and sources through database/sql. The same
// queries serve sqlite3 and postgres; only the placeholder format differs.
type SQLRepository struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	driver string
}

var (
	_ ports.NewsRepository   = (*SQLRepository)(nil)
	_ ports.SourceRepository = (*SQLRepository)(nil)
)

// NewSQLRepository wires an open sql.DB. driver selects the placeholder format.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	var format sq.PlaceholderFormat = sq.Question
	if driver == driverPostgres {
		format = sq.Dollar
	}
	return &SQLRepository{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		driver: driver,
	}
}

// OpenSQL opens the database, verifies the connection and applies the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	if driver != driverSQLite && driver != driverPostgres {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == driverSQLite {
		// one writer at a time avoids SQLITE_BUSY under the worker pool
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == driverSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return NewSQLRepository(db, driver), nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close releases the pool.
func (r *SQLRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping checks the store is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Get loads a single item by its content id.
func (r *SQLRepository) Get(ctx context.Context, id string) (domain.NewsItem, bool, error) {
	query, args, err := r.sb.Select(newsColumns...).From(newsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.NewsItem{}, false, fmt.Errorf("build get: %w", err)
	}

	item, err := scanNewsItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewsItem{}, false, nil
	}
	if err != nil {
		return domain.NewsItem{}, false, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, true, nil
}

// Put inserts the item; an existing row with the same id is left untouched.
func (r *SQLRepository) Put(ctx context.Context, item domain.NewsItem) (bool, error) {
	query, args, err := r.sb.Insert(newsTable).
		Columns(newsColumns...).
		Values(
			item.ID, item.Title, item.Summary, item.Description, item.Link, item.SourceName, item.Niche, item.Language,
			nullInt(item.SourcePublishedAt), item.InsertedAt,
			item.Approved, item.LocalNearDuplicate, item.ExternalNearDuplicate, item.Duplicate,
			item.Published, nullInt(item.PublishedAt), nullString(item.ExternalRef), nullString(item.ExternalURL),
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build put: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("put item %s: %w", item.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put item %s: rows affected: %w", item.ID, err)
	}
	return n == 1, nil
}

// UpdateFields applies a partial single-row update.
func (r *SQLRepository) UpdateFields(ctx context.Context, id string, patch domain.NewsPatch) error {
	if patch.Empty() {
		return nil
	}

	set := map[string]any{}
	if patch.Published != nil {
		set["published"] = *patch.Published
	}
	if patch.PublishedAt != nil {
		set["published_at"] = *patch.PublishedAt
	}
	if patch.ExternalRef != nil {
		set["external_ref"] = *patch.ExternalRef
	}
	if patch.ExternalURL != nil {
		set["external_url"] = *patch.ExternalURL
	}
	if patch.Duplicate != nil {
		set["duplicate"] = *patch.Duplicate
	}

	query, args, err := r.sb.Update(newsTable).SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update item %s: %w", id, ErrNotFound)
	}
	return nil
}

// Scan lists items matching the filter, oldest first unless NewestFirst is set.
// limit <= 0 means no cap.
func (r *SQLRepository) Scan(ctx context.Context, f domain.NewsFilter, limit int) ([]domain.NewsItem, error) {
	q := r.sb.Select(newsColumns...).From(newsTable)
	if f.InsertedSince > 0 {
		q = q.Where(sq.GtOrEq{"inserted_at": f.InsertedSince})
	}
	if f.InsertedBefore > 0 {
		q = q.Where(sq.Lt{"inserted_at": f.InsertedBefore})
	}
	if f.Approved != nil {
		q = q.Where(sq.Eq{"approved": *f.Approved})
	}
	if f.Published != nil {
		q = q.Where(sq.Eq{"published": *f.Published})
	}
	if f.Duplicate != nil {
		q = q.Where(sq.Eq{"duplicate": *f.Duplicate})
	}
	if f.NewestFirst {
		q = q.OrderBy("inserted_at DESC", "id DESC")
	} else {
		q = q.OrderBy("inserted_at ASC", "id ASC")
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scan: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}

	var items []domain.NewsItem
	for rows.Next() {
		item, err := scanNewsItem(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		items = append(items, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return items, nil
}

// Delete removes an item. Deleting a missing id is not an error.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete(newsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNewsItem(row rowScanner) (domain.NewsItem, error) {
	var (
		item              domain.NewsItem
		sourcePublishedAt sql.NullInt64
		publishedAt       sql.NullInt64
		externalRef       sql.NullString
		externalURL       sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.Title, &item.Summary, &item.Description, &item.Link, &item.SourceName, &item.Niche, &item.Language,
		&sourcePublishedAt, &item.InsertedAt,
		&item.Approved, &item.LocalNearDuplicate, &item.ExternalNearDuplicate, &item.Duplicate,
		&item.Published, &publishedAt, &externalRef, &externalURL,
	)
	if err != nil {
		return domain.NewsItem{}, err
	}
	item.SourcePublishedAt = fromNullInt(sourcePublishedAt)
	item.PublishedAt = fromNullInt(publishedAt)
	item.ExternalRef = fromNullString(externalRef)
	item.ExternalURL = fromNullString(externalURL)
	return item, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	out := v.String
	return &out
}
