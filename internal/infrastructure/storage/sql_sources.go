package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"FeedRelay/internal/domain"
)

var sourceColumns = []string{
	"id", "name", "feed_url", "niche", "active", "consecutive_failures", "last_error", "last_checked_at",
}

// ListSources returns configured sources ordered by name.
func (r *SQLRepository) ListSources(ctx context.Context, f domain.SourceFilter) ([]domain.Source, error) {
	q := r.sb.Select(sourceColumns...).From(sourcesTable).OrderBy("name ASC", "id ASC")
	if f.Active != nil {
		q = q.Where(sq.Eq{"active": *f.Active})
	}
	if len(f.Niches) > 0 {
		q = q.Where(sq.Eq{"niche": f.Niches})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// GetSource loads one source by id.
func (r *SQLRepository) GetSource(ctx context.Context, id string) (domain.Source, bool, error) {
	query, args, err := r.sb.Select(sourceColumns...).From(sourcesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("build get source: %w", err)
	}

	src, err := scanSource(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, false, nil
	}
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, true, nil
}

// UpsertSource syncs name, url and niche. The failure counter of an existing row
// is kept, and configuration can disable a source but never re-enable a tripped one.
func (r *SQLRepository) UpsertSource(ctx context.Context, src domain.Source) error {
	query, args, err := r.sb.Insert(sourcesTable).
		Columns("id", "name", "feed_url", "niche", "active", "consecutive_failures", "last_error").
		Values(src.ID, src.Name, src.FeedURL, src.Niche, src.Active, 0, "").
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			feed_url = excluded.feed_url,
			niche = excluded.niche,
			active = sources.active AND excluded.active`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert source: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return nil
}

// RecordSourceFailure bumps the counter of an active source in one statement and
// opens the circuit when the new value reaches threshold. Inactive sources are
// left as they are so the tripped counter stays intact.
func (r *SQLRepository) RecordSourceFailure(ctx context.Context, id string, threshold int, reason string, at time.Time) (domain.Source, bool, error) {
	query, args, err := r.sb.Update(sourcesTable).
		Set("consecutive_failures", sq.Expr("consecutive_failures + 1")).
		Set("active", sq.Expr("CASE WHEN consecutive_failures + 1 >= ? THEN FALSE ELSE active END", threshold)).
		Set("last_error", reason).
		Set("last_checked_at", at.Unix()).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"active": true}).
		Suffix("RETURNING " + strings.Join(sourceColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("build record failure: %w", err)
	}

	src, err := scanSource(r.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		// only rows that were active are updated, so an inactive result was tripped here
		return src, !src.Active, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, false, fmt.Errorf("record failure %s: %w", id, err)
	}

	src, ok, err := r.GetSource(ctx, id)
	if err != nil {
		return domain.Source{}, false, err
	}
	if !ok {
		return domain.Source{}, false, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return src, false, nil
}

// ResetSourceFailures clears the counter after a successful probe or fetch.
func (r *SQLRepository) ResetSourceFailures(ctx context.Context, id string, at time.Time) error {
	query, args, err := r.sb.Update(sourcesTable).
		Set("consecutive_failures", 0).
		Set("last_error", "").
		Set("last_checked_at", at.Unix()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failures: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reset failures %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetSourceActive flips the circuit by hand. Activating also clears the counter.
func (r *SQLRepository) SetSourceActive(ctx context.Context, id string, active bool) error {
	q := r.sb.Update(sourcesTable).Set("active", active).Where(sq.Eq{"id": id})
	if active {
		q = q.Set("consecutive_failures", 0).Set("last_error", "")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build set active: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set active %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		src         domain.Source
		lastChecked sql.NullInt64
	)
	if err := row.Scan(&src.ID, &src.Name, &src.FeedURL, &src.Niche, &src.Active,
		&src.ConsecutiveFailures, &src.LastError, &lastChecked); err != nil {
		return domain.Source{}, err
	}
	src.LastCheckedAt = fromNullInt(lastChecked)
	return src, nil
}
