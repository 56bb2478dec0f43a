package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"propsync/internal/app/client/config"
	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"

	"golang.org/x/exp/slog"
)

// Transport: вызовы API синхронизации
type Transport interface {
	HealthCheck(ctx context.Context) error
	Delta(ctx context.Context, req sync.DeltaSyncRequest) (*sync.DeltaSyncResponse, error)
	Full(ctx context.Context, req sync.FullSyncRequest) (*sync.FullSyncResponse, error)
	Batch(ctx context.Context, req sync.BatchSyncRequest) (*sync.BatchSyncResponse, error)
	Resolve(ctx context.Context, req sync.ConflictResolutionRequest) (*sync.ConflictResolutionResponse, error)
	Status(ctx context.Context, deviceID string) (*sync.SyncStatus, error)
	Logs(ctx context.Context, req sync.LogsRequest) (*sync.LogsResponse, error)
	Metrics(ctx context.Context, deviceID string) (*sync.SyncMetrics, error)
}

type App struct {
	config    *config.Config
	log       *slog.Logger
	transport Transport
	replica   *Replica
	state     *State
	now       func() time.Time
}

// DeltaResult: итог дельты, включая повторную отправку отклоненных изменений
type DeltaResult struct {
	Response *sync.DeltaSyncResponse
	Retry    *sync.DeltaSyncResponse
	Applied  int
	// Pages: число запросов дельты, включая догрузку обрезанной выдачи
	Pages int
}

// BatchResult: итог постраничной выгрузки
type BatchResult struct {
	Pages          int
	Records        int
	NextBatchStart *string
	HasMoreData    bool
	TotalRemaining *int
}

// FullResult: итог полной синхронизации
type FullResult struct {
	Response *sync.FullSyncResponse
	Stored   int
	Deleted  int
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	state, err := LoadState(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	replica, err := OpenReplica(cfg.ReplicaPath, log)
	if err != nil {
		return nil, err
	}

	return newApp(cfg, log, NewHTTPClient(cfg, log), replica, state), nil
}

func newApp(cfg *config.Config, log *slog.Logger, transport Transport, replica *Replica, state *State) *App {
	if state.DeviceID != cfg.DeviceID {
		// отметка времени относится к другому устройству
		state = &State{DeviceID: cfg.DeviceID}
	}
	return &App{
		config:    cfg,
		log:       log.With("component", "client_app", "device_id", cfg.DeviceID),
		transport: transport,
		replica:   replica,
		state:     state,
		now:       time.Now,
	}
}

func (a *App) Close() error {
	return a.replica.Close()
}

// State возвращает копию сохраненного состояния
func (a *App) State() State {
	return *a.state
}

func (a *App) CheckConnection(ctx context.Context) error {
	return a.transport.HealthCheck(ctx)
}

// maxDeltaPages ограничивает догрузку обрезанной серверной дельты за один вызов Delta
const maxDeltaPages = 100

// Delta отправляет изменения с последней сохраненной отметкой времени.
// Обрезанная сервером дельта догружается пустыми запросами.
// При retryRejected восстановимые отклонения отправляются еще раз.
func (a *App) Delta(ctx context.Context, changes []sync.Change, retryRejected bool) (*DeltaResult, error) {
	resp, err := a.exchange(ctx, changes)
	if err != nil {
		return nil, err
	}
	result := &DeltaResult{
		Response: resp.DeltaSyncResponse,
		Applied:  resp.appliedLocally,
		Pages:    1,
	}

	if err := a.drain(ctx, resp.DeltaSyncResponse, result); err != nil {
		return result, err
	}

	if retryRejected {
		again := recoverable(changes, resp.RejectedDetails)
		if len(again) > 0 {
			a.log.Info("resubmitting recoverable rejections", "count", len(again))
			retryResp, err := a.exchange(ctx, again)
			if err != nil {
				return result, fmt.Errorf("resubmit rejected changes: %w", err)
			}
			result.Pages++
			result.Retry = retryResp.DeltaSyncResponse
			result.Applied += retryResp.appliedLocally
			if err := a.drain(ctx, retryResp.DeltaSyncResponse, result); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// drain догружает оставшиеся страницы серверной дельты
func (a *App) drain(ctx context.Context, last *sync.DeltaSyncResponse, result *DeltaResult) error {
	for last.HasMoreChanges {
		if result.Pages >= maxDeltaPages {
			a.log.Warn("server delta is still truncated, continue with the next sync", "pages", result.Pages)
			return nil
		}
		next, err := a.exchange(ctx, nil)
		if err != nil {
			return fmt.Errorf("fetch remaining server changes: %w", err)
		}
		result.Pages++
		result.Applied += next.appliedLocally
		last = next.DeltaSyncResponse
	}
	return nil
}

type exchangeResult struct {
	*sync.DeltaSyncResponse
	appliedLocally int
}

// exchange отправляет одну дельту, переносит серверные изменения в реплику
// и только после этого сдвигает сохраненную отметку.
func (a *App) exchange(ctx context.Context, changes []sync.Change) (*exchangeResult, error) {
	resp, err := a.sendDelta(ctx, changes)
	if err != nil {
		return nil, err
	}

	n, err := a.replica.ApplyChanges(ctx, resp.ServerChanges)
	if err != nil {
		return nil, fmt.Errorf("apply server changes to replica: %w", err)
	}

	if resp.Status != sync.StatusFailed && !resp.NewSyncTimestamp.IsZero() {
		a.state.LastSyncTimestamp = resp.NewSyncTimestamp
		a.state.ServerCursor = resp.ServerCursor
		if err := a.saveState(); err != nil {
			return nil, err
		}
	}
	return &exchangeResult{DeltaSyncResponse: resp, appliedLocally: n}, nil
}

func (a *App) sendDelta(ctx context.Context, changes []sync.Change) (*sync.DeltaSyncResponse, error) {
	if changes == nil {
		changes = []sync.Change{}
	}
	for i := range changes {
		if changes[i].OriginDevice == "" {
			changes[i].OriginDevice = a.config.DeviceID
		}
	}

	return a.transport.Delta(ctx, sync.DeltaSyncRequest{
		DeviceID:          a.config.DeviceID,
		LastSyncTimestamp: a.state.LastSyncTimestamp,
		ServerCursor:      a.state.ServerCursor,
		Changes:           changes,
		AlgorithmVersion:  a.config.AlgorithmVersion,
		AppVersion:        a.config.AppVersion,
	})
}

// recoverable отбирает изменения, отклоненные с восстановимым кодом
func recoverable(changes []sync.Change, rejected []sync.RejectedChange) []sync.Change {
	ids := make(map[string]struct{}, len(rejected))
	for _, r := range rejected {
		if r.Recoverable {
			ids[r.RecordID] = struct{}{}
		}
	}

	out := make([]sync.Change, 0, len(ids))
	for _, ch := range changes {
		if _, ok := ids[ch.RecordID]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Full загружает полный снимок в реплику
func (a *App) Full(ctx context.Context, includeDeleted bool) (*FullResult, error) {
	resp, err := a.transport.Full(ctx, sync.FullSyncRequest{
		DeviceID:         a.config.DeviceID,
		IncludeDeleted:   includeDeleted,
		AlgorithmVersion: a.config.AlgorithmVersion,
		AppVersion:       a.config.AppVersion,
	})
	if err != nil {
		return nil, err
	}
	result := &FullResult{Response: resp}
	if resp.Status == sync.StatusFailed {
		return result, nil
	}

	if result.Stored, err = a.replica.ApplyRecords(ctx, resp.AllRecords); err != nil {
		return result, err
	}
	if result.Deleted, err = a.replica.MarkDeleted(ctx, resp.DeletedIDs); err != nil {
		return result, err
	}

	a.state.LastFullSync = resp.SyncTimestamp
	a.state.LastSyncTimestamp = resp.SyncTimestamp
	a.state.ServerCursor = ""
	return result, a.saveState()
}

// Batch выгружает страницы начиная с from. При all идет по курсорам до конца.
func (a *App) Batch(ctx context.Context, size int, from string, all bool) (*BatchResult, error) {
	result := &BatchResult{}
	cursor := from

	for {
		resp, err := a.transport.Batch(ctx, sync.BatchSyncRequest{
			DeviceID:            a.config.DeviceID,
			BatchSize:           size,
			StartFrom:           cursor,
			IncludeCalculations: true,
			AlgorithmVersion:    a.config.AlgorithmVersion,
			AppVersion:          a.config.AppVersion,
		})
		if err != nil {
			return result, err
		}
		if !resp.AlgorithmCompatible {
			return result, errors.New("server reports incompatible scoring algorithm")
		}

		n, err := a.replica.ApplyRecords(ctx, resp.BatchData)
		if err != nil {
			return result, err
		}
		result.Pages++
		result.Records += n
		result.NextBatchStart = resp.NextBatchStart
		result.HasMoreData = resp.HasMoreData
		result.TotalRemaining = resp.TotalRemaining

		if resp.NextBatchStart != nil {
			a.state.LastBatchCursor = *resp.NextBatchStart
		}
		if !all || !resp.HasMoreData || resp.NextBatchStart == nil {
			break
		}
		cursor = *resp.NextBatchStart
	}

	if !result.HasMoreData {
		a.state.LastBatchCursor = ""
	}
	return result, a.saveState()
}

func (a *App) Resolve(ctx context.Context, strategy sync.Strategy, conflicts []sync.Conflict) (*sync.ConflictResolutionResponse, error) {
	resolutions := make([]sync.Conflict, len(conflicts))
	for i, c := range conflicts {
		if strategy != "" {
			c.Resolution = strategy
		}
		resolutions[i] = c
	}

	return a.transport.Resolve(ctx, sync.ConflictResolutionRequest{
		DeviceID:    a.config.DeviceID,
		Resolutions: resolutions,
	})
}

func (a *App) Status(ctx context.Context) (*sync.SyncStatus, error) {
	return a.transport.Status(ctx, a.config.DeviceID)
}

func (a *App) Logs(ctx context.Context, page, pageSize int) (*sync.LogsResponse, error) {
	return a.transport.Logs(ctx, sync.LogsRequest{
		DeviceID: a.config.DeviceID,
		Page:     page,
		PageSize: pageSize,
	})
}

func (a *App) Metrics(ctx context.Context) (*sync.SyncMetrics, error) {
	return a.transport.Metrics(ctx, a.config.DeviceID)
}

// NewChange собирает изменение create для файла изменений
func (a *App) NewChange(payload property.Payload) (sync.Change, error) {
	return NewCreateChange(payload, a.config.DeviceID, a.now())
}

// LocalRecords возвращает активные записи реплики
func (a *App) LocalRecords(ctx context.Context) ([]property.Record, error) {
	return a.replica.Active(ctx)
}

func (a *App) saveState() error {
	a.state.DeviceID = a.config.DeviceID
	if err := a.state.Save(a.config.StatePath); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

type appKey struct{}

// NewContext кладет App в контекст команды
func NewContext(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// FromContext достает App, положенный NewContext
func FromContext(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey{}).(*App)
	if !ok || app == nil {
		return nil, errors.New("application is not initialized")
	}
	return app, nil
}
