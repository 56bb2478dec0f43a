package property

import (
	"context"
	"time"
)

// ChangeCursor задает позицию в потоке изменений, упорядоченном по (last_modified, id).
// Пустой AfterID означает все записи строго после Since.
type ChangeCursor struct {
	Since   time.Time
	AfterID string
}

// Repository: хранилище записей. Реализации работают в рамках транзакции вызывающего.
type Repository interface {
	// Get возвращает запись, в том числе удаленную, или ErrNotFound
	Get(ctx context.Context, id string) (*Record, error)
	// GetMany выбирает записи одним запросом по набору ID
	GetMany(ctx context.Context, ids []string) (map[string]*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error

	// ListChangedSince: записи после cursor в порядке (last_modified, id), автор которых не excludeWriter.
	// limit <= 0 означает без ограничения.
	ListChangedSince(ctx context.Context, cursor ChangeCursor, excludeWriter string, limit int) ([]Record, error)
	CountChangedSince(ctx context.Context, since time.Time, excludeWriter string) (int, error)

	ListActive(ctx context.Context) ([]Record, error)
	ListDeletedIDs(ctx context.Context) ([]string, error)
	// ListActiveAfter: курсорная выборка активных записей с id > cursor по возрастанию id
	ListActiveAfter(ctx context.Context, cursor string, limit int) ([]Record, error)
	CountActiveAfter(ctx context.Context, cursor string) (int, error)
}
