package sync

import (
	"context"
	"fmt"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/scoring"

	"golang.org/x/exp/slog"
)

// BatchPage: страница курсорной выборки
type BatchPage struct {
	Records    []property.Record
	NextCursor *string
	HasMore    bool
}

// Differ вычисляет, что известно серверу и не известно устройству.
// Собственные записи устройства в ответ не попадают.
type Differ struct {
	scorer scoring.Scorer
	log    *slog.Logger
}

func NewDiffer(scorer scoring.Scorer, log *slog.Logger) *Differ {
	return &Differ{
		scorer: scorer,
		log:    log.With("component", "differ"),
	}
}

// DeltaPage: серверные изменения одной дельты. HasMore означает, что выдача
// обрезана лимитом и продолжается с Next.
type DeltaPage struct {
	Changes []Change
	HasMore bool
	Next    property.ChangeCursor
}

// ServerChangesSince возвращает изменения после cursor, автор которых не deviceID.
// Лишняя запись сверх limit запрашивается только чтобы узнать, есть ли продолжение.
func (d *Differ) ServerChangesSince(ctx context.Context, repo property.Repository, deviceID string, cursor property.ChangeCursor, limit int) (*DeltaPage, error) {
	fetch := limit
	if limit > 0 {
		fetch = limit + 1
	}
	records, err := repo.ListChangedSince(ctx, cursor, deviceID, fetch)
	if err != nil {
		return nil, fmt.Errorf("list changed records: %w", err)
	}

	page := &DeltaPage{}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
		last := records[limit-1]
		page.HasMore = true
		page.Next = property.ChangeCursor{Since: last.LastModified, AfterID: last.ID}
	}

	page.Changes = make([]Change, 0, len(records))
	for _, rec := range records {
		page.Changes = append(page.Changes, toChange(rec))
	}

	d.log.Debug("server changes collected",
		"device_id", deviceID,
		"since", cursor.Since,
		"count", len(page.Changes),
		"has_more", page.HasMore,
	)
	return page, nil
}

// AllActiveRecords: полный снимок для первой или принудительной синхронизации
func (d *Differ) AllActiveRecords(ctx context.Context, repo property.Repository, includeDeleted bool) ([]property.Record, []string, error) {
	records, err := repo.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active records: %w", err)
	}
	for i := range records {
		d.ensureDerived(&records[i])
	}

	deleted := []string{}
	if includeDeleted {
		deleted, err = repo.ListDeletedIDs(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list deleted ids: %w", err)
		}
	}

	return records, deleted, nil
}

// Batch читает batchSize+1 строк после курсора: лишняя строка означает, что данные еще есть
func (d *Differ) Batch(ctx context.Context, repo property.Repository, cursor string, batchSize int, includeCalculations bool) (*BatchPage, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrInvalidRequest)
	}

	records, err := repo.ListActiveAfter(ctx, cursor, batchSize+1)
	if err != nil {
		return nil, fmt.Errorf("list batch after %q: %w", cursor, err)
	}

	page := &BatchPage{}
	if len(records) > batchSize {
		records = records[:batchSize]
		page.HasMore = true
	}
	for i := range records {
		if includeCalculations {
			d.ensureDerived(&records[i])
		} else {
			records[i].Derived = nil
		}
	}
	if len(records) > 0 {
		next := records[len(records)-1].ID
		page.NextCursor = &next
	}
	page.Records = records

	return page, nil
}

// PendingChangeCount: число изменений, ожидающих устройство.
// Без since считаются все активные записи.
func (d *Differ) PendingChangeCount(ctx context.Context, repo property.Repository, deviceID string, since *time.Time) (int, error) {
	var (
		n   int
		err error
	)
	if since == nil {
		n, err = repo.CountActiveAfter(ctx, "")
	} else {
		n, err = repo.CountChangedSince(ctx, *since, deviceID)
	}
	if err != nil {
		return 0, fmt.Errorf("count pending changes: %w", err)
	}
	return n, nil
}

func (d *Differ) ensureDerived(rec *property.Record) {
	if rec.Derived != nil {
		return
	}
	derived, err := d.scorer.Score(rec.Payload)
	if err != nil {
		d.log.Warn("failed to score record", "record_id", rec.ID, "error", err)
		return
	}
	rec.Derived = derived
}

func toChange(rec property.Record) Change {
	origin := rec.LastWriter
	if origin == "" {
		origin = ServerOrigin
	}

	ch := Change{
		RecordID:     rec.ID,
		Operation:    OpUpdate,
		Timestamp:    rec.LastModified,
		OriginDevice: origin,
	}
	if rec.IsDeleted {
		ch.Operation = OpDelete
	} else {
		ch.Payload = rec.Payload
	}
	return ch
}
