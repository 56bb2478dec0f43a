package sync

import (
	"context"
	"fmt"
	"strings"

	"propsync/internal/domain/property"
	"propsync/internal/domain/scoring"
	"propsync/internal/utils/errtrack"

	"golang.org/x/exp/slog"
)

// ConflictResolver находит конфликты записи-записи и применяет выбранные разрешения
type ConflictResolver struct {
	store   Store
	logger  *Logger
	applier *applier
	tracker *errtrack.Tracker
	log     *slog.Logger
}

func NewConflictResolver(store Store, logger *Logger, schema *property.Schema, scorer scoring.Scorer, tracker *errtrack.Tracker, log *slog.Logger) *ConflictResolver {
	log = log.With("component", "conflict_resolver")
	return &ConflictResolver{
		store:   store,
		logger:  logger,
		applier: newApplier(schema, scorer, logger.now, log),
		tracker: tracker,
		log:     log,
	}
}

// DetectConflict проверяет UPDATE против текущей записи.
// Конфликт есть, если сервер изменил запись позже версии клиента и значения полей расходятся.
func (r *ConflictResolver) DetectConflict(ch Change, current *property.Record) *Conflict {
	if ch.Operation != OpUpdate || current == nil {
		return nil
	}
	if !current.LastModified.After(ch.Timestamp) {
		return nil
	}

	fields := property.DiffKeys(ch.Payload, current.Payload)
	if len(fields) == 0 {
		return nil
	}

	return &Conflict{
		RecordID:        ch.RecordID,
		LocalTimestamp:  ch.Timestamp,
		RemoteTimestamp: current.LastModified,
		LocalPayload:    ch.Payload,
		RemotePayload:   current.Payload,
		ConflictFields:  fields,
	}
}

// BatchDetectConflicts делит изменения на бесконфликтные и конфликтные.
// Все затронутые записи читаются одним запросом.
func (r *ConflictResolver) BatchDetectConflicts(ctx context.Context, repo property.Repository, deviceID string, changes []Change) ([]Change, []Conflict, error) {
	ids := make([]string, 0, len(changes))
	seen := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		if ch.Operation != OpUpdate {
			continue
		}
		if _, ok := seen[ch.RecordID]; ok {
			continue
		}
		seen[ch.RecordID] = struct{}{}
		ids = append(ids, ch.RecordID)
	}

	conflicts := []Conflict{}
	if len(ids) == 0 {
		return changes, conflicts, nil
	}

	current, err := repo.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load records for conflict detection: %w", err)
	}

	pending := make([]Change, 0, len(changes))
	for _, ch := range changes {
		if c := r.DetectConflict(ch, current[ch.RecordID]); c != nil {
			conflicts = append(conflicts, *c)
			continue
		}
		pending = append(pending, ch)
	}

	if len(conflicts) > 0 {
		r.log.Info("conflicts detected", "device_id", deviceID, "count", len(conflicts))
	}
	return pending, conflicts, nil
}

// ApplyResolution применяет стратегию. false без ошибки означает, что конфликт остался открытым.
func (r *ConflictResolver) ApplyResolution(ctx context.Context, repo property.Repository, deviceID string, c Conflict) (bool, error) {
	switch c.Resolution {
	case UseRemote:
		return true, nil
	case UseLocal:
		if len(c.LocalPayload) == 0 {
			return false, ErrEmptyLocalPayload
		}
		if err := r.applier.update(ctx, repo, deviceID, c.RecordID, c.LocalPayload); err != nil {
			return false, err
		}
		return true, nil
	case Merge:
		// last-write-wins, при равенстве побеждает локальная версия
		if c.LocalTimestamp.Before(c.RemoteTimestamp) {
			return true, nil
		}
		if len(c.LocalPayload) == 0 {
			return false, ErrEmptyLocalPayload
		}
		if err := r.applier.update(ctx, repo, deviceID, c.RecordID, c.LocalPayload); err != nil {
			return false, err
		}
		return true, nil
	case AskUser:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Resolution)
	}
}

// ResolveConflicts применяет разрешения независимо друг от друга, каждое в своем savepoint,
// и пишет одну запись журнала на весь пакет.
func (r *ConflictResolver) ResolveConflicts(ctx context.Context, deviceID string, conflicts []Conflict) (*ConflictResolutionResponse, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := r.logger.CreateLog(ctx, tx, deviceID, KindResolveConflicts, true)
	if err != nil {
		return nil, err
	}

	resp := &ConflictResolutionResponse{Errors: []string{}}
	for _, c := range conflicts {
		resolved, err := r.resolveOne(ctx, tx, deviceID, c)
		switch {
		case err != nil:
			resp.RemainingCount++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", c.RecordID, err))
			r.tracker.Record(errtrack.Entry{
				Code:      string(Categorize(err)),
				DeviceID:  deviceID,
				Operation: string(KindResolveConflicts),
				RecordID:  c.RecordID,
				Message:   err.Error(),
			})
			r.log.Warn("failed to resolve conflict", "record_id", c.RecordID, "strategy", c.Resolution, "error", err)
		case resolved:
			resp.ResolvedCount++
		default:
			resp.RemainingCount++
		}
	}

	resp.Status = StatusSuccess
	if len(resp.Errors) > 0 {
		resp.Status = StatusPartial
	}

	err = r.logger.UpdateLog(ctx, tx, entry, Outcome{
		Status:            resp.Status,
		RecordsProcessed:  len(conflicts),
		ConflictsResolved: resp.ResolvedCount,
		ErrorMessage:      strings.Join(resp.Errors, "; "),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit conflict resolution: %w", err)
	}

	return resp, nil
}

func (r *ConflictResolver) resolveOne(ctx context.Context, tx Tx, deviceID string, c Conflict) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("open savepoint: %w", err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	resolved, err := r.ApplyResolution(ctx, sp, deviceID, c)
	if err != nil {
		return false, err
	}
	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit savepoint: %w", err)
	}
	return resolved, nil
}
