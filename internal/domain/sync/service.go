package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/scoring"
	"propsync/internal/utils/errtrack"

	"golang.org/x/exp/slog"
)

// Servicer интерфейс сервиса синхронизации
type Servicer interface {
	// ProcessDeltaSync применяет изменения устройства и возвращает серверную дельту
	ProcessDeltaSync(ctx context.Context, req DeltaSyncRequest) (*DeltaSyncResponse, error)

	// ProcessFullSync возвращает полный снимок активных записей
	ProcessFullSync(ctx context.Context, req FullSyncRequest) (*FullSyncResponse, error)

	// ProcessBatchSync возвращает страницу записей по курсору
	ProcessBatchSync(ctx context.Context, req BatchSyncRequest) (*BatchSyncResponse, error)

	// ResolveConflicts применяет выбранные клиентом разрешения конфликтов
	ResolveConflicts(ctx context.Context, req ConflictResolutionRequest) (*ConflictResolutionResponse, error)

	// GetDeviceStatus возвращает состояние синхронизации устройства
	GetDeviceStatus(ctx context.Context, deviceID string) (*SyncStatus, error)

	// GetDeviceMetrics возвращает показатели устройства за последние дни
	GetDeviceMetrics(ctx context.Context, deviceID string) (*SyncMetrics, error)

	// GetLogs возвращает журнал синхронизации постранично
	GetLogs(ctx context.Context, req LogsRequest) (*LogsResponse, error)

	// RecentErrors возвращает последние зафиксированные ошибки
	RecentErrors(ctx context.Context, limit int) (*ErrorsResponse, error)
}

// Gate: проверка совместимости алгоритмов клиента и сервера
type Gate interface {
	Validate(algorithmVersion, appVersion string) scoring.Result
	SelfCheck() scoring.Result
}

// ServiceConfig конфигурация сервиса синхронизации
type ServiceConfig struct {
	// MaxServerChanges ограничивает одну дельту, 0: без ограничения.
	// Остаток отдается следующими запросами с server_cursor.
	MaxServerChanges int
	DefaultBatchSize int
	MaxBatchSize     int
	MetricsWindow    time.Duration
	DefaultPageSize  int
	MaxPageSize      int
	Schema           *property.Schema
	Clock            func() time.Time
}

// Service: оркестратор синхронизации, владеет границами транзакций
type Service struct {
	store    Store
	gate     Gate
	logger   *Logger
	differ   *Differ
	resolver *ConflictResolver
	applier  *applier
	schema   *property.Schema
	tracker  *errtrack.Tracker
	log      *slog.Logger
	config   *ServiceConfig
}

// NewService создает новый сервис синхронизации
func NewService(store Store, gate Gate, scorer scoring.Scorer, tracker *errtrack.Tracker, log *slog.Logger, config *ServiceConfig) *Service {
	config = withDefaults(config)
	log = log.With("component", "sync_service")

	logger := NewLogger(log, config.Clock)
	return &Service{
		store:    store,
		gate:     gate,
		logger:   logger,
		differ:   NewDiffer(scorer, log),
		resolver: NewConflictResolver(store, logger, config.Schema, scorer, tracker, log),
		applier:  newApplier(config.Schema, scorer, config.Clock, log),
		schema:   config.Schema,
		tracker:  tracker,
		log:      log,
		config:   config,
	}
}

var _ Servicer = (*Service)(nil)

func withDefaults(config *ServiceConfig) *ServiceConfig {
	cfg := ServiceConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 100
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = 7 * 24 * time.Hour
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.Schema == nil {
		cfg.Schema = property.DefaultSchema()
	}
	if cfg.Clock == nil {
		cfg.Clock = defaultClock
	}
	return &cfg
}

type deltaResult struct {
	applied       int
	rejected      []RejectedChange
	conflicts     []Conflict
	serverChanges []Change
	syncTimestamp time.Time
	serverCursor  string
	hasMore       bool
}

func (r *deltaResult) status() LogStatus {
	switch {
	case len(r.conflicts) > 0:
		return StatusConflict
	case len(r.rejected) > 0 && r.applied > 0:
		return StatusPartial
	case len(r.rejected) > 0:
		return StatusFailed
	default:
		return StatusSuccess
	}
}

// ProcessDeltaSync: шлюз совместимости → конфликты → пакетное применение с откатом на поштучное →
// дельта сервера → журнал → ответ
func (s *Service) ProcessDeltaSync(ctx context.Context, req DeltaSyncRequest) (*DeltaSyncResponse, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	compat := s.gate.Validate(req.AlgorithmVersion, req.AppVersion)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.logger.CreateLog(ctx, tx, req.DeviceID, KindDeltaSync, compat.Compatible)
	if err != nil {
		return nil, err
	}

	if !compat.Compatible {
		if err := s.failAndCommit(ctx, tx, entry, KindDeltaSync, compat.Message); err != nil {
			return nil, err
		}
		return &DeltaSyncResponse{
			ServerChanges:        []Change{},
			Conflicts:            []Conflict{},
			NewSyncTimestamp:     req.LastSyncTimestamp,
			ServerCursor:         req.ServerCursor,
			Status:               StatusFailed,
			RejectedDetails:      []RejectedChange{},
			AlgorithmCompatible:  false,
			CompatibilityMessage: compat.Message,
			LogID:                entry.ID,
		}, nil
	}

	res, err := s.processChanges(ctx, tx, req)
	if err != nil {
		s.failQuietly(ctx, tx, entry, KindDeltaSync, err)
		return nil, fmt.Errorf("delta sync for %s: %w", req.DeviceID, err)
	}

	status := res.status()
	var message string
	if len(res.rejected) > 0 {
		message = fmt.Sprintf("%d of %d changes rejected", len(res.rejected), len(req.Changes))
	}
	err = s.logger.UpdateLog(ctx, tx, entry, Outcome{
		Status:            status,
		RecordsProcessed:  len(req.Changes),
		ConflictsDetected: len(res.conflicts),
		ErrorMessage:      message,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delta sync: %w", err)
	}

	return &DeltaSyncResponse{
		ServerChanges:        res.serverChanges,
		Conflicts:            res.conflicts,
		NewSyncTimestamp:     res.syncTimestamp,
		ServerCursor:         res.serverCursor,
		HasMoreChanges:       res.hasMore,
		Status:               status,
		ChangesApplied:       res.applied,
		ChangesRejected:      len(res.rejected),
		RejectedDetails:      res.rejected,
		ServerChangesCount:   len(res.serverChanges),
		ConflictsCount:       len(res.conflicts),
		AlgorithmCompatible:  true,
		CompatibilityMessage: compat.Message,
		LogID:                entry.ID,
	}, nil
}

// processChanges выполняет все изменения в savepoint "work": при ошибке откатываются
// только изменения записей, а запись журнала остается во внешней транзакции.
func (s *Service) processChanges(ctx context.Context, tx Tx, req DeltaSyncRequest) (*deltaResult, error) {
	work, err := tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("open work savepoint: %w", err)
	}
	defer func() { _ = work.Rollback(ctx) }()

	res := &deltaResult{rejected: []RejectedChange{}}

	valid := make([]Change, 0, len(req.Changes))
	for _, ch := range req.Changes {
		if ch.Operation == OpNoChange {
			continue
		}
		normalized, err := s.validateChange(ch)
		if err != nil {
			res.rejected = append(res.rejected, s.reject(req.DeviceID, ch, err))
			continue
		}
		valid = append(valid, normalized)
	}

	pending, conflicts, err := s.resolver.BatchDetectConflicts(ctx, work, req.DeviceID, valid)
	if err != nil {
		return nil, err
	}
	res.conflicts = conflicts

	applied, rejected := s.applyChanges(ctx, work, req.DeviceID, pending)
	res.applied = applied
	res.rejected = append(res.rejected, rejected...)

	res.syncTimestamp = s.config.Clock()
	cursor := property.ChangeCursor{Since: req.LastSyncTimestamp, AfterID: req.ServerCursor}
	page, err := s.differ.ServerChangesSince(ctx, work, req.DeviceID, cursor, s.config.MaxServerChanges)
	if err != nil {
		return nil, err
	}
	res.serverChanges = page.Changes
	if page.HasMore {
		// отметка не может уйти дальше последней отданной записи
		res.syncTimestamp = page.Next.Since
		res.serverCursor = page.Next.AfterID
		res.hasMore = true
	}

	if err := work.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit work savepoint: %w", err)
	}
	return res, nil
}

// applyChanges сначала пробует применить весь набор атомарно, затем поштучно
func (s *Service) applyChanges(ctx context.Context, tx Tx, deviceID string, changes []Change) (int, []RejectedChange) {
	if len(changes) == 0 {
		return 0, nil
	}

	applied, err := s.applyBatch(ctx, tx, deviceID, changes)
	if err == nil {
		return applied, nil
	}

	s.log.Warn("batch apply failed, retrying changes individually",
		"device_id", deviceID,
		"changes", len(changes),
		"error", err,
	)
	return s.applyIndividually(ctx, tx, deviceID, changes)
}

func (s *Service) applyBatch(ctx context.Context, tx Tx, deviceID string, changes []Change) (int, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("open batch savepoint: %w", err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	for _, ch := range changes {
		if err := s.applier.apply(ctx, sp, deviceID, ch); err != nil {
			return 0, fmt.Errorf("%s %s: %w", ch.Operation, ch.RecordID, err)
		}
	}

	if err := sp.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch savepoint: %w", err)
	}
	return len(changes), nil
}

func (s *Service) applyIndividually(ctx context.Context, tx Tx, deviceID string, changes []Change) (int, []RejectedChange) {
	applied := 0
	rejected := make([]RejectedChange, 0)

	for _, ch := range changes {
		if err := s.applyOne(ctx, tx, deviceID, ch); err != nil {
			rejected = append(rejected, s.reject(deviceID, ch, err))
			continue
		}
		applied++
	}
	return applied, rejected
}

func (s *Service) applyOne(ctx context.Context, tx Tx, deviceID string, ch Change) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	if err := s.applier.apply(ctx, sp, deviceID, ch); err != nil {
		return err
	}
	return sp.Commit(ctx)
}

// validateChange проверяет контрольную сумму и схему payload
func (s *Service) validateChange(ch Change) (Change, error) {
	if ch.RecordID == "" {
		return ch, fmt.Errorf("%w: record_id is required", property.ErrInvalidData)
	}

	switch ch.Operation {
	case OpCreate, OpUpdate:
		if ch.Checksum != "" {
			sum, err := ch.Payload.Checksum()
			if err != nil {
				return ch, fmt.Errorf("%w: %v", property.ErrInvalidData, err)
			}
			if !strings.EqualFold(sum, ch.Checksum) {
				return ch, fmt.Errorf("%w: record %s", ErrChecksumMismatch, ch.RecordID)
			}
		}
		normalized, err := s.schema.Validate(ch.Payload)
		if err != nil {
			return ch, err
		}
		ch.Payload = normalized
	case OpDelete:
		ch.Payload = nil
	default:
		return ch, fmt.Errorf("%w: unknown operation %q", property.ErrInvalidData, ch.Operation)
	}

	return ch, nil
}

func (s *Service) reject(deviceID string, ch Change, err error) RejectedChange {
	rc := NewRejectedChange(ch, err)
	s.track(deviceID, KindDeltaSync, ch.RecordID, rc.ErrorCode, rc.Reason)
	s.log.Warn("change rejected",
		"device_id", deviceID,
		"record_id", ch.RecordID,
		"operation", ch.Operation,
		"error_code", rc.ErrorCode,
		"recoverable", rc.Recoverable,
		"error", err,
	)
	return rc
}

func (s *Service) track(deviceID string, op OperationKind, recordID string, code ErrorCode, message string) {
	s.tracker.Record(errtrack.Entry{
		Time:      s.config.Clock(),
		Code:      string(code),
		DeviceID:  deviceID,
		Operation: string(op),
		RecordID:  recordID,
		Message:   message,
	})
}
