package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Outcome: итоговые поля, которыми закрывается запись журнала
type Outcome struct {
	Status            LogStatus
	RecordsProcessed  int
	ConflictsDetected int
	ConflictsResolved int
	ErrorMessage      string
}

// Logger ведет жизненный цикл SyncLog и дублирует его в slog.
// Других владельцев у записей журнала нет.
type Logger struct {
	log *slog.Logger
	now func() time.Time
}

func NewLogger(log *slog.Logger, now func() time.Time) *Logger {
	if now == nil {
		now = defaultClock
	}
	return &Logger{
		log: log.With("component", "sync_logger"),
		now: now,
	}
}

// CreateLog вставляет запись в статусе pending в рамках транзакции вызывающего
func (l *Logger) CreateLog(ctx context.Context, repo LogRepository, deviceID string, op OperationKind, compatible bool) (*SyncLog, error) {
	entry := &SyncLog{
		ID:                        uuid.NewString(),
		DeviceID:                  deviceID,
		Operation:                 op,
		Status:                    StatusPending,
		StartedAt:                 l.now(),
		AlgorithmValidationPassed: compatible,
	}

	if err := repo.InsertLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert sync log: %w", err)
	}

	l.log.Info("sync started",
		"log_id", entry.ID,
		"device_id", deviceID,
		"operation", op,
		"algorithm_compatible", compatible,
	)
	return entry, nil
}

// UpdateLog переводит запись в конечный статус и считает длительность
func (l *Logger) UpdateLog(ctx context.Context, repo LogRepository, entry *SyncLog, out Outcome) error {
	if entry.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrLogFinalized, entry.ID, entry.Status)
	}
	if out.Status == "" || out.Status == StatusPending {
		return fmt.Errorf("%w: terminal status required", ErrInvalidRequest)
	}

	completed := l.now()
	updated := *entry
	updated.Status = out.Status
	updated.CompletedAt = &completed
	updated.DurationSeconds = completed.Sub(entry.StartedAt).Seconds()
	updated.RecordsProcessed = out.RecordsProcessed
	updated.ConflictsDetected = out.ConflictsDetected
	updated.ConflictsResolved = out.ConflictsResolved
	updated.ErrorMessage = out.ErrorMessage

	if err := repo.UpdateLog(ctx, &updated); err != nil {
		return fmt.Errorf("update sync log: %w", err)
	}
	*entry = updated

	attrs := []any{
		"log_id", entry.ID,
		"device_id", entry.DeviceID,
		"operation", entry.Operation,
		"status", entry.Status,
		"duration", time.Duration(entry.DurationSeconds * float64(time.Second)),
		"records_processed", entry.RecordsProcessed,
		"conflicts_detected", entry.ConflictsDetected,
		"conflicts_resolved", entry.ConflictsResolved,
	}
	switch entry.Status {
	case StatusFailed:
		l.log.Error("sync failed", append(attrs, "error", entry.ErrorMessage)...)
	case StatusConflict, StatusPartial:
		l.log.Warn("sync finished with issues", append(attrs, "error", entry.ErrorMessage)...)
	default:
		l.log.Info("sync finished", attrs...)
	}
	return nil
}

// MarkSuccess закрывает запись как success, а при обнаруженных конфликтах как conflict
func (l *Logger) MarkSuccess(ctx context.Context, repo LogRepository, entry *SyncLog, processed, conflictsDetected, conflictsResolved int) error {
	status := StatusSuccess
	if conflictsDetected > 0 {
		status = StatusConflict
	}
	return l.UpdateLog(ctx, repo, entry, Outcome{
		Status:            status,
		RecordsProcessed:  processed,
		ConflictsDetected: conflictsDetected,
		ConflictsResolved: conflictsResolved,
	})
}

func (l *Logger) MarkFailed(ctx context.Context, repo LogRepository, entry *SyncLog, message string) error {
	return l.UpdateLog(ctx, repo, entry, Outcome{
		Status:       StatusFailed,
		ErrorMessage: message,
	})
}

// GetLastSuccessfulSync возвращает nil, если устройство ни разу не синхронизировалось
func (l *Logger) GetLastSuccessfulSync(ctx context.Context, repo LogRepository, deviceID string) (*SyncLog, error) {
	entry, err := repo.LastSuccessfulLog(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrLogNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last successful sync: %w", err)
	}
	return entry, nil
}

func (l *Logger) CountUnresolvedConflicts(ctx context.Context, repo LogRepository, deviceID string) (int, error) {
	n, err := repo.CountUnresolvedConflicts(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("count unresolved conflicts: %w", err)
	}
	return n, nil
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
