package sync

import (
	"time"

	"propsync/internal/domain/property"
)

// Operation: вид изменения записи
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpNoChange Operation = "no_change"
)

// ServerOrigin: автор изменений, не привязанных к устройству
const ServerOrigin = "server"

// Change: неизменяемая единица синхронизации
type Change struct {
	RecordID     string           `json:"record_id" minLength:"1"`
	Operation    Operation        `json:"operation" enum:"create,update,delete,no_change"`
	Payload      property.Payload `json:"payload,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	OriginDevice string           `json:"origin_device,omitempty"`
	Checksum     string           `json:"checksum,omitempty"`
}

// Strategy: способ разрешения конфликта
type Strategy string

const (
	UseLocal  Strategy = "use_local"
	UseRemote Strategy = "use_remote"
	Merge     Strategy = "merge"
	AskUser   Strategy = "ask_user"
)

// Conflict: сервер успел изменить запись после версии, известной клиенту
type Conflict struct {
	RecordID        string           `json:"record_id"`
	LocalTimestamp  time.Time        `json:"local_timestamp"`
	RemoteTimestamp time.Time        `json:"remote_timestamp"`
	LocalPayload    property.Payload `json:"local_payload,omitempty"`
	RemotePayload   property.Payload `json:"remote_payload,omitempty"`
	ConflictFields  []string         `json:"conflict_fields,omitempty"`
	Resolution      Strategy         `json:"resolution,omitempty" enum:"use_local,use_remote,merge,ask_user"`
}

// RejectedChange: изменение, не примененное при поштучной обработке
type RejectedChange struct {
	RecordID    string    `json:"record_id"`
	Operation   Operation `json:"operation"`
	Reason      string    `json:"reason"`
	ErrorCode   ErrorCode `json:"error_code"`
	Recoverable bool      `json:"recoverable"`
}

// LogStatus: состояние записи журнала синхронизации
type LogStatus string

const (
	StatusPending  LogStatus = "pending"
	StatusSuccess  LogStatus = "success"
	StatusFailed   LogStatus = "failed"
	StatusConflict LogStatus = "conflict"
	StatusPartial  LogStatus = "partial"
)

// OperationKind: тип операции синхронизации в журнале
type OperationKind string

const (
	KindDeltaSync        OperationKind = "delta_sync"
	KindFullSync         OperationKind = "full_sync"
	KindBatchSync        OperationKind = "batch_sync"
	KindResolveConflicts OperationKind = "resolve_conflicts"
)

// SyncLog: запись журнала. Создается в pending, переводится в конечный статус ровно один раз.
type SyncLog struct {
	ID                        string        `json:"id"`
	DeviceID                  string        `json:"device_id"`
	Operation                 OperationKind `json:"operation"`
	Status                    LogStatus     `json:"status"`
	StartedAt                 time.Time     `json:"started_at"`
	CompletedAt               *time.Time    `json:"completed_at,omitempty"`
	DurationSeconds           float64       `json:"duration_seconds"`
	RecordsProcessed          int           `json:"records_processed"`
	ConflictsDetected         int           `json:"conflicts_detected"`
	ConflictsResolved         int           `json:"conflicts_resolved"`
	ErrorMessage              string        `json:"error_message,omitempty"`
	AlgorithmValidationPassed bool          `json:"algorithm_validation_passed"`
}

// Terminal возвращает true, если запись уже закрыта
func (l *SyncLog) Terminal() bool {
	return l.Status != StatusPending
}
