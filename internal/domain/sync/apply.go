package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/scoring"

	"golang.org/x/exp/slog"
)

// applier: единственный путь изменения записей для Orchestrator и ConflictResolver
type applier struct {
	schema *property.Schema
	scorer scoring.Scorer
	now    func() time.Time
	log    *slog.Logger
}

func newApplier(schema *property.Schema, scorer scoring.Scorer, now func() time.Time, log *slog.Logger) *applier {
	return &applier{
		schema: schema,
		scorer: scorer,
		now:    now,
		log:    log,
	}
}

func (a *applier) apply(ctx context.Context, repo property.Repository, deviceID string, ch Change) error {
	switch ch.Operation {
	case OpCreate:
		return a.create(ctx, repo, deviceID, ch.RecordID, ch.Payload)
	case OpUpdate:
		return a.update(ctx, repo, deviceID, ch.RecordID, ch.Payload)
	case OpDelete:
		return a.delete(ctx, repo, deviceID, ch.RecordID)
	case OpNoChange:
		return nil
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, ch.Operation)
	}
}

func (a *applier) create(ctx context.Context, repo property.Repository, deviceID, id string, payload property.Payload) error {
	normalized, err := a.schema.Validate(payload)
	if err != nil {
		return err
	}

	now := a.now()
	rec := &property.Record{
		ID:           id,
		Payload:      normalized,
		Derived:      a.score(id, normalized),
		LastModified: now,
		CreatedAt:    now,
		LastWriter:   deviceID,
	}
	if err := repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("create %s: %w", id, err)
	}
	return nil
}

// update заменяет payload целиком. Отсутствующая запись создается,
// совпадающий payload не меняет запись и ее last_modified.
func (a *applier) update(ctx context.Context, repo property.Repository, deviceID, id string, payload property.Payload) error {
	normalized, err := a.schema.Validate(payload)
	if err != nil {
		return err
	}

	rec, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			return a.create(ctx, repo, deviceID, id, normalized)
		}
		return fmt.Errorf("load %s: %w", id, err)
	}
	if rec.IsDeleted {
		return fmt.Errorf("update %s: %w", id, property.ErrDeleted)
	}
	if rec.Payload.Equal(normalized) {
		return nil
	}

	rec.Payload = normalized
	rec.Derived = a.score(id, normalized)
	rec.LastModified = a.next(rec.LastModified)
	rec.LastWriter = deviceID

	if err := repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

// delete помечает запись удаленной, повторное удаление ничего не меняет
func (a *applier) delete(ctx context.Context, repo property.Repository, deviceID, id string) error {
	rec, err := repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if rec.IsDeleted {
		return nil
	}

	rec.IsDeleted = true
	rec.LastModified = a.next(rec.LastModified)
	rec.LastWriter = deviceID

	if err := repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// next гарантирует строгий рост last_modified даже при отстающих часах
func (a *applier) next(prev time.Time) time.Time {
	t := a.now()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func (a *applier) score(id string, p property.Payload) *property.Derived {
	derived, err := a.scorer.Score(p)
	if err != nil {
		a.log.Warn("failed to score record", "record_id", id, "error", err)
		return nil
	}
	return derived
}
