package client

import (
	"context"
	"errors"
	"fmt"

	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"
	"propsync/internal/infrastructure/storage/sqlite"

	"golang.org/x/exp/slog"
)

// Replica: локальная копия записей сервера на устройстве
type Replica struct {
	store *sqlite.Store
	log   *slog.Logger
}

func OpenReplica(path string, log *slog.Logger) (*Replica, error) {
	store, err := sqlite.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("open replica: %w", err)
	}
	return &Replica{store: store, log: log.With("component", "replica")}, nil
}

func (r *Replica) Close() error {
	return r.store.Close()
}

// ApplyRecords сохраняет записи снимка или пакета, заменяя локальные версии
func (r *Replica) ApplyRecords(ctx context.Context, records []property.Record) (int, error) {
	return r.inTx(ctx, func(tx sync.Tx) (int, error) {
		for i := range records {
			if err := upsert(ctx, tx, &records[i]); err != nil {
				return 0, err
			}
		}
		return len(records), nil
	})
}

// ApplyChanges переносит серверную дельту в реплику
func (r *Replica) ApplyChanges(ctx context.Context, changes []sync.Change) (int, error) {
	return r.inTx(ctx, func(tx sync.Tx) (int, error) {
		applied := 0
		for _, ch := range changes {
			rec := &property.Record{
				ID:           ch.RecordID,
				Payload:      ch.Payload,
				LastModified: ch.Timestamp,
				CreatedAt:    ch.Timestamp,
				LastWriter:   writer(ch.OriginDevice),
			}

			switch ch.Operation {
			case sync.OpCreate, sync.OpUpdate:
			case sync.OpDelete:
				existing, err := tx.Get(ctx, ch.RecordID)
				if errors.Is(err, property.ErrNotFound) {
					continue
				}
				if err != nil {
					return 0, err
				}
				rec.Payload = existing.Payload
				rec.IsDeleted = true
			default:
				continue
			}

			if err := upsert(ctx, tx, rec); err != nil {
				return 0, err
			}
			applied++
		}
		return applied, nil
	})
}

// MarkDeleted помечает удаленными записи из списка deleted_ids полного снимка
func (r *Replica) MarkDeleted(ctx context.Context, ids []string) (int, error) {
	return r.inTx(ctx, func(tx sync.Tx) (int, error) {
		existing, err := tx.GetMany(ctx, ids)
		if err != nil {
			return 0, err
		}
		marked := 0
		for _, rec := range existing {
			if rec.IsDeleted {
				continue
			}
			rec.IsDeleted = true
			if err := tx.Update(ctx, rec); err != nil {
				return 0, err
			}
			marked++
		}
		return marked, nil
	})
}

// Active возвращает активные записи реплики
func (r *Replica) Active(ctx context.Context) ([]property.Record, error) {
	var records []property.Record
	_, err := r.inTx(ctx, func(tx sync.Tx) (int, error) {
		var err error
		records, err = tx.ListActive(ctx)
		return len(records), err
	})
	return records, err
}

func (r *Replica) inTx(ctx context.Context, fn func(sync.Tx) (int, error)) (int, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			r.log.Error("rollback replica transaction", "error", err)
		}
	}()

	n, err := fn(tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replica: %w", err)
	}
	return n, nil
}

func upsert(ctx context.Context, tx sync.Tx, rec *property.Record) error {
	err := tx.Update(ctx, rec)
	if errors.Is(err, property.ErrNotFound) {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = rec.LastModified
		}
		return tx.Create(ctx, rec)
	}
	return err
}

func writer(origin string) string {
	if origin == sync.ServerOrigin {
		return ""
	}
	return origin
}
