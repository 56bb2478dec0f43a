package sync

import (
	"context"
	"fmt"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/scoring"
)

// ProcessFullSync отдает снимок всех активных записей
func (s *Service) ProcessFullSync(ctx context.Context, req FullSyncRequest) (*FullSyncResponse, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	compat := s.gate.Validate(req.AlgorithmVersion, req.AppVersion)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.logger.CreateLog(ctx, tx, req.DeviceID, KindFullSync, compat.Compatible)
	if err != nil {
		return nil, err
	}

	resp := &FullSyncResponse{
		AllRecords:           []property.Record{},
		DeletedIDs:           []string{},
		AlgorithmCompatible:  compat.Compatible,
		CompatibilityMessage: compat.Message,
	}

	if !compat.Compatible {
		if err := s.failAndCommit(ctx, tx, entry, KindFullSync, compat.Message); err != nil {
			return nil, err
		}
		resp.Status = StatusFailed
		return resp, nil
	}

	resp.SyncTimestamp = s.config.Clock()
	records, deleted, err := s.differ.AllActiveRecords(ctx, tx, req.IncludeDeleted)
	if err != nil {
		s.failQuietly(ctx, tx, entry, KindFullSync, err)
		return nil, fmt.Errorf("full sync for %s: %w", req.DeviceID, err)
	}

	if err := s.logger.MarkSuccess(ctx, tx, entry, len(records), 0, 0); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit full sync: %w", err)
	}

	s.log.Debug("full sync served",
		"device_id", req.DeviceID,
		"force", req.ForceSync,
		"records", len(records),
		"deleted", len(deleted),
	)

	resp.Status = entry.Status
	resp.AllRecords = records
	resp.DeletedIDs = deleted
	resp.TotalCount = len(records)
	return resp, nil
}

// ProcessBatchSync отдает одну страницу записей по курсору
func (s *Service) ProcessBatchSync(ctx context.Context, req BatchSyncRequest) (*BatchSyncResponse, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	size := req.BatchSize
	if size == 0 {
		size = s.config.DefaultBatchSize
	}
	if size < 1 || size > s.config.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch_size must be between 1 and %d", ErrInvalidRequest, s.config.MaxBatchSize)
	}

	compat := s.check(req.AlgorithmVersion, req.AppVersion)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := s.logger.CreateLog(ctx, tx, req.DeviceID, KindBatchSync, compat.Compatible)
	if err != nil {
		return nil, err
	}

	if !compat.Compatible {
		if err := s.failAndCommit(ctx, tx, entry, KindBatchSync, compat.Message); err != nil {
			return nil, err
		}
		return &BatchSyncResponse{BatchData: []property.Record{}, AlgorithmCompatible: false}, nil
	}

	page, err := s.differ.Batch(ctx, tx, req.StartFrom, size, req.IncludeCalculations)
	if err != nil {
		s.failQuietly(ctx, tx, entry, KindBatchSync, err)
		return nil, fmt.Errorf("batch sync for %s: %w", req.DeviceID, err)
	}

	resp := &BatchSyncResponse{
		BatchData:           page.Records,
		HasMoreData:         page.HasMore,
		BatchCount:          len(page.Records),
		AlgorithmCompatible: true,
	}
	if page.HasMore {
		resp.NextBatchStart = page.NextCursor
		remaining, err := tx.CountActiveAfter(ctx, *page.NextCursor)
		if err != nil {
			s.failQuietly(ctx, tx, entry, KindBatchSync, err)
			return nil, fmt.Errorf("count remaining records: %w", err)
		}
		resp.TotalRemaining = &remaining
	}

	if err := s.logger.MarkSuccess(ctx, tx, entry, len(page.Records), 0, 0); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch sync: %w", err)
	}

	return resp, nil
}

// ResolveConflicts применяет разрешения через ConflictResolver
func (s *Service) ResolveConflicts(ctx context.Context, req ConflictResolutionRequest) (*ConflictResolutionResponse, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	if compat := s.gate.SelfCheck(); !compat.Compatible {
		s.track(req.DeviceID, KindResolveConflicts, "", CodeIncompatible, compat.Message)
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, compat.Message)
	}

	resp, err := s.resolver.ResolveConflicts(ctx, req.DeviceID, req.Resolutions)
	if err != nil {
		s.track(req.DeviceID, KindResolveConflicts, "", Categorize(err), err.Error())
		return nil, err
	}
	return resp, nil
}

// GetDeviceStatus сообщает, нужна ли устройству синхронизация
func (s *Service) GetDeviceStatus(ctx context.Context, deviceID string) (*SyncStatus, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	last, err := s.logger.GetLastSuccessfulSync(ctx, tx, deviceID)
	if err != nil {
		return nil, err
	}

	status := &SyncStatus{DeviceID: deviceID}

	var since *time.Time
	if last != nil {
		t := last.StartedAt
		if last.CompletedAt != nil {
			t = *last.CompletedAt
		}
		since = &t
		status.LastSyncTimestamp = &t
	}

	status.PendingChanges, err = s.differ.PendingChangeCount(ctx, tx, deviceID, since)
	if err != nil {
		return nil, err
	}
	status.UnresolvedConflicts, err = s.logger.CountUnresolvedConflicts(ctx, tx, deviceID)
	if err != nil {
		return nil, err
	}

	status.IsSyncRequired = status.PendingChanges > 0 || status.UnresolvedConflicts > 0
	status.AlgorithmCompatible = s.gate.SelfCheck().Compatible
	return status, nil
}

// GetDeviceMetrics собирает показатели по журналу за окно наблюдения
func (s *Service) GetDeviceMetrics(ctx context.Context, deviceID string) (*SyncMetrics, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	since := s.config.Clock().Add(-s.config.MetricsWindow)
	logs, err := tx.ListLogsSince(ctx, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMetrics, deviceID)
	}

	latest := logs[0]
	m := &SyncMetrics{
		DeviceID:                  deviceID,
		SyncOperation:             latest.Operation,
		Status:                    latest.Status,
		LastSyncAt:                latest.StartedAt,
		DurationSeconds:           latest.DurationSeconds,
		RecordsProcessed:          latest.RecordsProcessed,
		RecordsSuccessful:         max(latest.RecordsProcessed-latest.ConflictsDetected, 0),
		RecordsFailed:             latest.ConflictsDetected,
		ConflictsDetected:         latest.ConflictsDetected,
		ConflictsResolved:         latest.ConflictsResolved,
		AlgorithmValidationPassed: latest.AlgorithmValidationPassed && s.gate.SelfCheck().Compatible,
		WindowSyncs:               len(logs),
		ErrorsByCode:              s.tracker.CountByCode(deviceID),
	}
	if latest.CompletedAt != nil {
		m.LastSyncAt = *latest.CompletedAt
	}

	var (
		total     float64
		completed int
	)
	for _, l := range logs {
		switch l.Status {
		case StatusSuccess:
			m.WindowSuccessful++
		case StatusFailed:
			m.WindowFailed++
		case StatusConflict:
			m.WindowConflicts++
		}
		if l.CompletedAt != nil {
			total += l.DurationSeconds
			completed++
		}
	}
	if completed > 0 {
		m.AvgDurationSeconds = total / float64(completed)
	}

	return m, nil
}

// GetLogs возвращает страницу журнала, новые записи первыми
func (s *Service) GetLogs(ctx context.Context, req LogsRequest) (*LogsResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	size := req.PageSize
	if size == 0 {
		size = s.config.DefaultPageSize
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be positive", ErrInvalidRequest)
	}
	if size < 1 || size > s.config.MaxPageSize {
		return nil, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidRequest, s.config.MaxPageSize)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	logs, total, err := tx.ListLogs(ctx, LogFilter{
		DeviceID: req.DeviceID,
		Offset:   (page - 1) * size,
		Limit:    size,
	})
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	if logs == nil {
		logs = []SyncLog{}
	}

	return &LogsResponse{
		Logs:       logs,
		TotalCount: total,
		Page:       page,
		PageSize:   size,
	}, nil
}

func (s *Service) RecentErrors(_ context.Context, limit int) (*ErrorsResponse, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	return &ErrorsResponse{
		Errors: s.tracker.Recent(limit),
		Total:  s.tracker.Len(),
	}, nil
}

// check использует полную проверку, если клиент прислал версии, иначе только эталонный расчет
func (s *Service) check(algorithmVersion, appVersion string) scoring.Result {
	if algorithmVersion == "" && appVersion == "" {
		return s.gate.SelfCheck()
	}
	return s.gate.Validate(algorithmVersion, appVersion)
}

func (s *Service) failAndCommit(ctx context.Context, tx Tx, entry *SyncLog, op OperationKind, message string) error {
	s.track(entry.DeviceID, op, "", CodeIncompatible, message)
	if err := s.logger.MarkFailed(ctx, tx, entry, message); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sync log: %w", err)
	}
	return nil
}

// failQuietly фиксирует failed-запись журнала; ошибки только логируются,
// так как вызывающий уже возвращает исходную ошибку
func (s *Service) failQuietly(ctx context.Context, tx Tx, entry *SyncLog, op OperationKind, cause error) {
	s.track(entry.DeviceID, op, "", Categorize(cause), cause.Error())
	if err := s.logger.MarkFailed(ctx, tx, entry, cause.Error()); err != nil {
		s.log.Error("failed to mark sync log as failed", "log_id", entry.ID, "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Error("failed to commit failed sync log", "log_id", entry.ID, "error", err)
	}
}
