package sync

import (
	"context"
	"time"

	"propsync/internal/domain/property"
)

// LogFilter: параметры постраничной выборки журнала
type LogFilter struct {
	DeviceID string
	Offset   int
	Limit    int
}

// LogRepository: хранилище журнала синхронизации
type LogRepository interface {
	InsertLog(ctx context.Context, entry *SyncLog) error
	UpdateLog(ctx context.Context, entry *SyncLog) error
	// LastSuccessfulLog возвращает последнюю успешную запись по completed_at или ErrLogNotFound
	LastSuccessfulLog(ctx context.Context, deviceID string) (*SyncLog, error)
	CountUnresolvedConflicts(ctx context.Context, deviceID string) (int, error)
	// ListLogs возвращает страницу журнала (новые первыми) и общее число записей
	ListLogs(ctx context.Context, filter LogFilter) ([]SyncLog, int, error)
	// ListLogsSince возвращает записи устройства, начатые после since, новые первыми
	ListLogsSince(ctx context.Context, deviceID string, since time.Time) ([]SyncLog, error)
}

// Tx: транзакция хранилища. Begin открывает вложенную транзакцию (savepoint),
// откат которой не затрагивает уже зафиксированные соседние savepoint'ы.
// Rollback после Commit ничего не делает.
type Tx interface {
	property.Repository
	LogRepository

	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store открывает транзакции верхнего уровня
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}
