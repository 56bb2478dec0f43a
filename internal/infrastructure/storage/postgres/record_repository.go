package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"propsync/internal/domain/property"

	"github.com/jackc/pgx/v5"
)

const recordColumns = `id, payload, derived, last_modified, created_at, is_deleted, last_writer`

type recordRepository struct {
	q querier
}

func (r recordRepository) Get(ctx context.Context, id string) (*property.Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM properties WHERE id = $1`

	rec, err := scanRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", property.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (r recordRepository) GetMany(ctx context.Context, ids []string) (map[string]*property.Record, error) {
	out := make(map[string]*property.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const query = `SELECT ` + recordColumns + ` FROM properties WHERE id = ANY($1)`
	records, err := r.list(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}
	for i := range records {
		out[records[i].ID] = &records[i]
	}
	return out, nil
}

func (r recordRepository) Create(ctx context.Context, rec *property.Record) error {
	const query = `
		INSERT INTO properties (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.Exec(ctx, query,
		rec.ID, payloadOrEmpty(rec.Payload), rec.Derived,
		rec.LastModified, rec.CreatedAt, rec.IsDeleted, rec.LastWriter,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", mapError(err))
	}
	return nil
}

func (r recordRepository) Update(ctx context.Context, rec *property.Record) error {
	const query = `
		UPDATE properties
		SET payload = $2, derived = $3, last_modified = $4, is_deleted = $5, last_writer = $6
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query,
		rec.ID, payloadOrEmpty(rec.Payload), rec.Derived, rec.LastModified, rec.IsDeleted, rec.LastWriter,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", property.ErrNotFound, rec.ID)
	}
	return nil
}

func (r recordRepository) ListChangedSince(ctx context.Context, cursor property.ChangeCursor, excludeWriter string, limit int) ([]property.Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM properties
		WHERE (last_modified > $1 OR ($2::text <> '' AND last_modified = $1 AND id > $2)) AND last_writer <> $3
		ORDER BY last_modified, id
		LIMIT NULLIF($4, 0)`
	return r.list(ctx, query, cursor.Since, cursor.AfterID, excludeWriter, max(limit, 0))
}

func (r recordRepository) CountChangedSince(ctx context.Context, since time.Time, excludeWriter string) (int, error) {
	const query = `SELECT COUNT(*) FROM properties WHERE last_modified > $1 AND last_writer <> $2`

	var n int
	if err := r.q.QueryRow(ctx, query, since, excludeWriter).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changed records: %w", err)
	}
	return n, nil
}

func (r recordRepository) ListActive(ctx context.Context) ([]property.Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM properties WHERE NOT is_deleted ORDER BY id`
	return r.list(ctx, query)
}

func (r recordRepository) ListDeletedIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM properties WHERE is_deleted ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deleted ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan deleted ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (r recordRepository) ListActiveAfter(ctx context.Context, cursor string, limit int) ([]property.Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM properties
		WHERE NOT is_deleted AND id > $1
		ORDER BY id
		LIMIT $2`
	return r.list(ctx, query, cursor, limit)
}

func (r recordRepository) CountActiveAfter(ctx context.Context, cursor string) (int, error) {
	const query = `SELECT COUNT(*) FROM properties WHERE NOT is_deleted AND id > $1`

	var n int
	if err := r.q.QueryRow(ctx, query, cursor).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active records: %w", err)
	}
	return n, nil
}

func (r recordRepository) list(ctx context.Context, query string, args ...any) ([]property.Record, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []property.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*property.Record, error) {
	var rec property.Record
	err := row.Scan(
		&rec.ID, &rec.Payload, &rec.Derived,
		&rec.LastModified, &rec.CreatedAt, &rec.IsDeleted, &rec.LastWriter,
	)
	if err != nil {
		return nil, err
	}
	rec.LastModified = rec.LastModified.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func payloadOrEmpty(p property.Payload) property.Payload {
	if p == nil {
		return property.Payload{}
	}
	return p
}
