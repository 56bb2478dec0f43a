package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"propsync/internal/domain/sync"

	"github.com/jackc/pgx/v5"
)

const logColumns = `id, device_id, operation, status, started_at, completed_at, duration_seconds,
	records_processed, conflicts_detected, conflicts_resolved, error_message, algorithm_validation_passed`

type logRepository struct {
	q querier
}

func (r logRepository) InsertLog(ctx context.Context, entry *sync.SyncLog) error {
	const query = `
		INSERT INTO sync_logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.q.Exec(ctx, query,
		entry.ID, entry.DeviceID, string(entry.Operation), string(entry.Status),
		entry.StartedAt, entry.CompletedAt, entry.DurationSeconds,
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
		SET status = $2, completed_at = $3, duration_seconds = $4, records_processed = $5,
		    conflicts_detected = $6, conflicts_resolved = $7, error_message = $8
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query,
		entry.ID, string(entry.Status), entry.CompletedAt, entry.DurationSeconds, entry.RecordsProcessed,
		entry.ConflictsDetected, entry.ConflictsResolved, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update sync log: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", sync.ErrLogNotFound, entry.ID)
	}
	return nil
}

func (r logRepository) LastSuccessfulLog(ctx context.Context, deviceID string) (*sync.SyncLog, error) {
	const query = `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE device_id = $1 AND status = $2
		ORDER BY completed_at DESC NULLS LAST
		LIMIT 1`

	entry, err := scanLog(r.q.QueryRow(ctx, query, deviceID, string(sync.StatusSuccess)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sync.ErrLogNotFound
		}
		return nil, fmt.Errorf("get last successful log: %w", err)
	}
	return entry, nil
}

func (r logRepository) CountUnresolvedConflicts(ctx context.Context, deviceID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM sync_logs
		WHERE device_id = $1 AND status = $2 AND conflicts_resolved = 0`

	var n int
	if err := r.q.QueryRow(ctx, query, deviceID, string(sync.StatusConflict)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved conflicts: %w", err)
	}
	return n, nil
}

func (r logRepository) ListLogs(ctx context.Context, filter sync.LogFilter) ([]sync.SyncLog, int, error) {
	// пустой device_id означает все устройства
	const countQuery = `SELECT COUNT(*) FROM sync_logs WHERE $1 = '' OR device_id = $1`
	const query = `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE $1 = '' OR device_id = $1
		ORDER BY started_at DESC, id
		LIMIT $2 OFFSET $3`

	var total int
	if err := r.q.QueryRow(ctx, countQuery, filter.DeviceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sync logs: %w", err)
	}

	logs, err := r.list(ctx, query, filter.DeviceID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r logRepository) ListLogsSince(ctx context.Context, deviceID string, since time.Time) ([]sync.SyncLog, error) {
	const query = `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE device_id = $1 AND started_at >= $2
		ORDER BY started_at DESC, id`
	return r.list(ctx, query, deviceID, since)
}

func (r logRepository) list(ctx context.Context, query string, args ...any) ([]sync.SyncLog, error) {
	rows, err := r.q.Query(ctx, query, args...)
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

func scanLog(row pgx.Row) (*sync.SyncLog, error) {
	var (
		entry     sync.SyncLog
		operation string
		status    string
	)
	err := row.Scan(
		&entry.ID, &entry.DeviceID, &operation, &status,
		&entry.StartedAt, &entry.CompletedAt, &entry.DurationSeconds,
		&entry.RecordsProcessed, &entry.ConflictsDetected, &entry.ConflictsResolved,
		&entry.ErrorMessage, &entry.AlgorithmValidationPassed,
	)
	if err != nil {
		return nil, err
	}

	entry.Operation = sync.OperationKind(operation)
	entry.Status = sync.LogStatus(status)
	entry.StartedAt = entry.StartedAt.UTC()
	if entry.CompletedAt != nil {
		t := entry.CompletedAt.UTC()
		entry.CompletedAt = &t
	}
	return &entry, nil
}
