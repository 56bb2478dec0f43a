package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"propsync/internal/domain/property"
)

const recordColumns = `id, payload, derived, last_modified, created_at, is_deleted, last_writer`

type recordRepository struct {
	q querier
}

func (r recordRepository) Get(ctx context.Context, id string) (*property.Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM properties WHERE id = ?`

	rec, err := scanRecord(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	query := `SELECT ` + recordColumns + ` FROM properties WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	records, err := r.list(ctx, query, args...)
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
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	payload, derived, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, query,
		rec.ID, payload, derived,
		toMicro(rec.LastModified), toMicro(rec.CreatedAt),
		rec.IsDeleted, rec.LastWriter,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", mapError(err))
	}
	return nil
}

func (r recordRepository) Update(ctx context.Context, rec *property.Record) error {
	const query = `
		UPDATE properties
		SET payload = ?, derived = ?, last_modified = ?, is_deleted = ?, last_writer = ?
		WHERE id = ?`

	payload, derived, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, query,
		payload, derived, toMicro(rec.LastModified), rec.IsDeleted, rec.LastWriter, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", property.ErrNotFound, rec.ID)
	}
	return nil
}

func (r recordRepository) ListChangedSince(ctx context.Context, cursor property.ChangeCursor, excludeWriter string, limit int) ([]property.Record, error) {
	since := toMicro(cursor.Since)
	query := `
		SELECT ` + recordColumns + `
		FROM properties
		WHERE (last_modified > ? OR (? <> '' AND last_modified = ? AND id > ?)) AND last_writer <> ?
		ORDER BY last_modified, id`
	args := []any{since, cursor.AfterID, since, cursor.AfterID, excludeWriter}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r recordRepository) CountChangedSince(ctx context.Context, since time.Time, excludeWriter string) (int, error) {
	const query = `SELECT COUNT(*) FROM properties WHERE last_modified > ? AND last_writer <> ?`

	var n int
	if err := r.q.QueryRowContext(ctx, query, toMicro(since), excludeWriter).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changed records: %w", err)
	}
	return n, nil
}

func (r recordRepository) ListActive(ctx context.Context) ([]property.Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM properties WHERE is_deleted = 0 ORDER BY id`
	return r.list(ctx, query)
}

func (r recordRepository) ListDeletedIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM properties WHERE is_deleted = 1 ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deleted ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r recordRepository) ListActiveAfter(ctx context.Context, cursor string, limit int) ([]property.Record, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM properties
		WHERE is_deleted = 0 AND id > ?
		ORDER BY id
		LIMIT ?`
	return r.list(ctx, query, cursor, limit)
}

func (r recordRepository) CountActiveAfter(ctx context.Context, cursor string) (int, error) {
	const query = `SELECT COUNT(*) FROM properties WHERE is_deleted = 0 AND id > ?`

	var n int
	if err := r.q.QueryRowContext(ctx, query, cursor).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active records: %w", err)
	}
	return n, nil
}

func (r recordRepository) list(ctx context.Context, query string, args ...any) ([]property.Record, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*property.Record, error) {
	var (
		rec          property.Record
		payload      string
		derived      sql.NullString
		lastModified int64
		createdAt    int64
	)
	err := row.Scan(&rec.ID, &payload, &derived, &lastModified, &createdAt, &rec.IsDeleted, &rec.LastWriter)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", rec.ID, err)
	}
	if derived.Valid && derived.String != "" {
		rec.Derived = &property.Derived{}
		if err := json.Unmarshal([]byte(derived.String), rec.Derived); err != nil {
			return nil, fmt.Errorf("decode derived fields of %s: %w", rec.ID, err)
		}
	}
	rec.LastModified = fromMicro(lastModified)
	rec.CreatedAt = fromMicro(createdAt)

	return &rec, nil
}

func encodeRecord(rec *property.Record) (string, sql.NullString, error) {
	payload := rec.Payload
	if payload == nil {
		payload = property.Payload{}
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("%w: encode payload: %v", property.ErrInvalidData, err)
	}

	var derived sql.NullString
	if rec.Derived != nil {
		d, err := json.Marshal(rec.Derived)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("encode derived fields: %w", err)
		}
		derived = sql.NullString{String: string(d), Valid: true}
	}
	return string(p), derived, nil
}
