package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"propsync/internal/domain/sync"
)

const logColumns = `id, device_id, operation, status, started_at, completed_at, duration_seconds,
	records_processed, conflicts_detected, conflicts_resolved, error_message, algorithm_validation_passed`

type logRepository struct {
	q querier
}

func (r logRepository) InsertLog(ctx context.Context, entry *sync.SyncLog) error {
	const query = `INSERT INTO sync_logs (` + logColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, query,
		entry.ID, entry.DeviceID, entry.Operation, entry.Status,
		toMicro(entry.StartedAt), nullMicro(entry.CompletedAt), entry.DurationSeconds,
		entry.RecordsProcessed, entry.ConflictsDetected, entry.ConflictsResolved,
		entry.ErrorMessage, entry.AlgorithmValidationPassed,
	)
	if err != nil {
		return fmt.Errorf("insert sync log: %w", mapError(err))
	}
	return nil
}

func (r logRepository) UpdateLog(ctx context.Context, entry *sync.SyncLog) error {
	const query = `
		UPDATE sync_logs
		SET status = ?, completed_at = ?, duration_seconds = ?, records_processed = ?,
		    conflicts_detected = ?, conflicts_resolved = ?, error_message = ?
		WHERE id = ?`

	res, err := r.q.ExecContext(ctx, query,
		entry.Status, nullMicro(entry.CompletedAt), entry.DurationSeconds, entry.RecordsProcessed,
		entry.ConflictsDetected, entry.ConflictsResolved, entry.ErrorMessage, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update sync log: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync log: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", sync.ErrLogNotFound, entry.ID)
	}
	return nil
}

func (r logRepository) LastSuccessfulLog(ctx context.Context, deviceID string) (*sync.SyncLog, error) {
	const query = `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE device_id = ? AND status = ?
		ORDER BY completed_at DESC
		LIMIT 1`

	entry, err := scanLog(r.q.QueryRowContext(ctx, query, deviceID, sync.StatusSuccess))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sync.ErrLogNotFound
		}
		return nil, fmt.Errorf("get last successful log: %w", err)
	}
	return entry, nil
}

func (r logRepository) CountUnresolvedConflicts(ctx context.Context, deviceID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM sync_logs
		WHERE device_id = ? AND status = ? AND conflicts_resolved = 0`

	var n int
	if err := r.q.QueryRowContext(ctx, query, deviceID, sync.StatusConflict).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved conflicts: %w", err)
	}
	return n, nil
}

func (r logRepository) ListLogs(ctx context.Context, filter sync.LogFilter) ([]sync.SyncLog, int, error) {
	where := ``
	args := []any{}
	if filter.DeviceID != "" {
		where = ` WHERE device_id = ?`
		args = append(args, filter.DeviceID)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sync logs: %w", err)
	}

	query := `SELECT ` + logColumns + ` FROM sync_logs` + where + ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
	logs, err := r.list(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r logRepository) ListLogsSince(ctx context.Context, deviceID string, since time.Time) ([]sync.SyncLog, error) {
	const query = `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE device_id = ? AND started_at >= ?
		ORDER BY started_at DESC, id`
	return r.list(ctx, query, deviceID, toMicro(since))
}

func (r logRepository) list(ctx context.Context, query string, args ...any) ([]sync.SyncLog, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync logs: %w", err)
	}
	defer rows.Close()

	logs := []sync.SyncLog{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		logs = append(logs, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync logs: %w", err)
	}
	return logs, nil
}

func scanLog(row scanner) (*sync.SyncLog, error) {
	var (
		entry     sync.SyncLog
		startedAt int64
		completed sql.NullInt64
	)
	err := row.Scan(
		&entry.ID, &entry.DeviceID, &entry.Operation, &entry.Status,
		&startedAt, &completed, &entry.DurationSeconds,
		&entry.RecordsProcessed, &entry.ConflictsDetected, &entry.ConflictsResolved,
		&entry.ErrorMessage, &entry.AlgorithmValidationPassed,
	)
	if err != nil {
		return nil, err
	}

	entry.StartedAt = fromMicro(startedAt)
	if completed.Valid {
		t := fromMicro(completed.Int64)
		entry.CompletedAt = &t
	}
	return &entry, nil
}

func nullMicro(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicro(*t), Valid: true}
}
