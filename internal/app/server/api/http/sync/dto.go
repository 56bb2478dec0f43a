package sync

import (
	"propsync/internal/domain/sync"
)

type deltaSyncInput struct {
	Body sync.DeltaSyncRequest
}

type deltaSyncOutput struct {
	Body sync.DeltaSyncResponse
}

type fullSyncInput struct {
	Body sync.FullSyncRequest
}

type fullSyncOutput struct {
	Body sync.FullSyncResponse
}

type batchSyncInput struct {
	Body sync.BatchSyncRequest
}

type batchSyncOutput struct {
	Body sync.BatchSyncResponse
}

type resolveConflictsInput struct {
	Body sync.ConflictResolutionRequest
}

type resolveConflictsOutput struct {
	Body sync.ConflictResolutionResponse
}

type statusInput struct {
	DeviceID string `query:"device_id" required:"true" minLength:"1" doc:"Идентификатор устройства"`
}

type statusOutput struct {
	Body sync.SyncStatus
}

type logsInput struct {
	DeviceID string `query:"device_id" doc:"Фильтр по устройству"`
	Page     int    `query:"page" default:"1" minimum:"1"`
	PageSize int    `query:"page_size" default:"20" minimum:"1" maximum:"100"`
}

type logsOutput struct {
	Body sync.LogsResponse
}

type metricsInput struct {
	DeviceID string `path:"device_id" minLength:"1"`
}

type metricsOutput struct {
	Body sync.SyncMetrics
}

type errorsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000"`
}

type errorsOutput struct {
	Body sync.ErrorsResponse
}
