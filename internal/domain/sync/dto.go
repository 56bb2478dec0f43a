package sync

import (
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/utils/errtrack"
)

type DeltaSyncRequest struct {
	DeviceID          string    `json:"device_id" minLength:"1"`
	LastSyncTimestamp time.Time `json:"last_sync_timestamp" required:"false"`
	// ServerCursor: id последней полученной записи, если прошлая дельта была обрезана
	ServerCursor      string    `json:"server_cursor,omitempty"`
	Changes           []Change  `json:"changes" required:"false"`
	AlgorithmVersion  string    `json:"algorithm_version,omitempty"`
	AppVersion        string    `json:"app_version,omitempty"`
}

type DeltaSyncResponse struct {
	ServerChanges        []Change         `json:"server_changes"`
	Conflicts            []Conflict       `json:"conflicts"`
	NewSyncTimestamp     time.Time        `json:"new_sync_timestamp"`
	ServerCursor         string           `json:"server_cursor,omitempty"`
	HasMoreChanges       bool             `json:"has_more_changes"`
	Status               LogStatus        `json:"status"`
	ChangesApplied       int              `json:"changes_applied"`
	ChangesRejected      int              `json:"changes_rejected"`
	RejectedDetails      []RejectedChange `json:"rejected_details"`
	ServerChangesCount   int              `json:"server_changes_count"`
	ConflictsCount       int              `json:"conflicts_count"`
	AlgorithmCompatible  bool             `json:"algorithm_compatible"`
	CompatibilityMessage string           `json:"compatibility_message,omitempty"`
	LogID                string           `json:"log_id,omitempty"`
}

type FullSyncRequest struct {
	DeviceID         string `json:"device_id" minLength:"1"`
	ForceSync        bool   `json:"force_sync,omitempty"`
	IncludeDeleted   bool   `json:"include_deleted,omitempty"`
	AlgorithmVersion string `json:"algorithm_version,omitempty"`
	AppVersion       string `json:"app_version,omitempty"`
}

type FullSyncResponse struct {
	Status               LogStatus         `json:"status"`
	AllRecords           []property.Record `json:"all_records"`
	DeletedIDs           []string          `json:"deleted_ids"`
	SyncTimestamp        time.Time         `json:"sync_timestamp"`
	TotalCount           int               `json:"total_count"`
	AlgorithmCompatible  bool              `json:"algorithm_compatible"`
	CompatibilityMessage string            `json:"compatibility_message,omitempty"`
}

type BatchSyncRequest struct {
	DeviceID            string `json:"device_id" minLength:"1"`
	BatchSize           int    `json:"batch_size,omitempty" minimum:"1" maximum:"1000"`
	StartFrom           string `json:"start_from,omitempty"`
	IncludeCalculations bool   `json:"include_calculations,omitempty"`
	AlgorithmVersion    string `json:"algorithm_version,omitempty"`
	AppVersion          string `json:"app_version,omitempty"`
}

type BatchSyncResponse struct {
	BatchData           []property.Record `json:"batch_data"`
	NextBatchStart      *string           `json:"next_batch_start"`
	HasMoreData         bool              `json:"has_more_data"`
	BatchCount          int               `json:"batch_count"`
	TotalRemaining      *int              `json:"total_remaining,omitempty"`
	AlgorithmCompatible bool              `json:"algorithm_compatible"`
}

type ConflictResolutionRequest struct {
	DeviceID    string     `json:"device_id" minLength:"1"`
	Resolutions []Conflict `json:"resolutions"`
}

type ConflictResolutionResponse struct {
	ResolvedCount  int       `json:"resolved_count"`
	RemainingCount int       `json:"remaining_count"`
	Status         LogStatus `json:"status"`
	Errors         []string  `json:"errors"`
}

// SyncStatus: состояние синхронизации устройства
type SyncStatus struct {
	DeviceID            string     `json:"device_id"`
	LastSyncTimestamp   *time.Time `json:"last_sync_timestamp,omitempty"`
	PendingChanges      int        `json:"pending_changes"`
	UnresolvedConflicts int        `json:"unresolved_conflicts"`
	IsSyncRequired      bool       `json:"is_sync_required"`
	AlgorithmCompatible bool       `json:"algorithm_compatible"`
}

// SyncMetrics: показатели устройства за окно наблюдения
type SyncMetrics struct {
	DeviceID                  string         `json:"device_id"`
	SyncOperation             OperationKind  `json:"sync_operation"`
	Status                    LogStatus      `json:"status"`
	LastSyncAt                time.Time      `json:"last_sync_at"`
	DurationSeconds           float64        `json:"duration_seconds"`
	RecordsProcessed          int            `json:"records_processed"`
	RecordsSuccessful         int            `json:"records_successful"`
	RecordsFailed             int            `json:"records_failed"`
	ConflictsDetected         int            `json:"conflicts_detected"`
	ConflictsResolved         int            `json:"conflicts_resolved"`
	AlgorithmValidationPassed bool           `json:"algorithm_validation_passed"`
	WindowSyncs               int            `json:"window_syncs"`
	WindowSuccessful          int            `json:"window_successful"`
	WindowFailed              int            `json:"window_failed"`
	WindowConflicts           int            `json:"window_conflicts"`
	AvgDurationSeconds        float64        `json:"avg_duration_seconds"`
	ErrorsByCode              map[string]int `json:"errors_by_code"`
}

type LogsRequest struct {
	DeviceID string
	Page     int
	PageSize int
}

type LogsResponse struct {
	Logs       []SyncLog `json:"logs"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

type ErrorsResponse struct {
	Errors []errtrack.Entry `json:"errors"`
	Total  int              `json:"total"`
}
