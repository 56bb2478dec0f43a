package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"
	"propsync/internal/utils/errtrack"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type MockServicer struct {
	mock.Mock
}

func (m *MockServicer) ProcessDeltaSync(ctx context.Context, req sync.DeltaSyncRequest) (*sync.DeltaSyncResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.DeltaSyncResponse), args.Error(1)
}

func (m *MockServicer) ProcessFullSync(ctx context.Context, req sync.FullSyncRequest) (*sync.FullSyncResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.FullSyncResponse), args.Error(1)
}

func (m *MockServicer) ProcessBatchSync(ctx context.Context, req sync.BatchSyncRequest) (*sync.BatchSyncResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.BatchSyncResponse), args.Error(1)
}

func (m *MockServicer) ResolveConflicts(ctx context.Context, req sync.ConflictResolutionRequest) (*sync.ConflictResolutionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.ConflictResolutionResponse), args.Error(1)
}

func (m *MockServicer) GetDeviceStatus(ctx context.Context, deviceID string) (*sync.SyncStatus, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncStatus), args.Error(1)
}

func (m *MockServicer) GetDeviceMetrics(ctx context.Context, deviceID string) (*sync.SyncMetrics, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncMetrics), args.Error(1)
}

func (m *MockServicer) GetLogs(ctx context.Context, req sync.LogsRequest) (*sync.LogsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.LogsResponse), args.Error(1)
}

func (m *MockServicer) RecentErrors(ctx context.Context, limit int) (*sync.ErrorsResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.ErrorsResponse), args.Error(1)
}

type countingLimiter struct {
	routes map[string]int
}

func (c *countingLimiter) Middleware(_ huma.API, route string, perMinute int) func(huma.Context, func(huma.Context)) {
	c.routes[route] = perMinute
	return func(ctx huma.Context, next func(huma.Context)) { next(ctx) }
}

func setup(t *testing.T) (*MockServicer, humatest.TestAPI) {
	t.Helper()
	service := new(MockServicer)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(service, log, huma.Middlewares{}, nil)

	_, api := humatest.New(t)
	handler.SetupRoutes(api)
	return service, api
}

func TestHandler_deltaSync(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       any
		setupMock  func(*MockServicer)
		wantStatus int
		wantBody   string
	}{
		{
			name: "success",
			body: map[string]any{
				"device_id":           "dev-1",
				"last_sync_timestamp": ts,
				"changes": []map[string]any{{
					"record_id": "r1",
					"operation": "create",
					"payload":   map[string]any{"parcel_id": "P-1", "amount": 1000},
					"timestamp": ts,
				}},
			},
			setupMock: func(m *MockServicer) {
				m.On("ProcessDeltaSync", mock.Anything, mock.MatchedBy(func(req sync.DeltaSyncRequest) bool {
					return req.DeviceID == "dev-1" && len(req.Changes) == 1 &&
						req.Changes[0].Payload["parcel_id"] == "P-1" && req.LastSyncTimestamp.Equal(ts)
				})).Return(&sync.DeltaSyncResponse{
					Status:              sync.StatusSuccess,
					ChangesApplied:      1,
					ServerChanges:       []sync.Change{},
					Conflicts:           []sync.Conflict{},
					RejectedDetails:     []sync.RejectedChange{},
					AlgorithmCompatible: true,
					NewSyncTimestamp:    ts.Add(time.Minute),
				}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"changes_applied":1`,
		},
		{
			name: "unknown operation rejected by validation",
			body: map[string]any{
				"device_id": "dev-1",
				"changes": []map[string]any{{
					"record_id": "r1",
					"operation": "upsert",
					"timestamp": ts,
				}},
			},
			setupMock:  func(*MockServicer) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing device id",
			body:       map[string]any{"device_id": ""},
			setupMock:  func(*MockServicer) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "internal error",
			body: map[string]any{"device_id": "dev-1"},
			setupMock: func(m *MockServicer) {
				m.On("ProcessDeltaSync", mock.Anything, mock.Anything).
					Return(nil, errors.New("connection reset"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal server error",
		},
		{
			name: "storage error mentioning invalid stays internal",
			body: map[string]any{"device_id": "dev-1"},
			setupMock: func(m *MockServicer) {
				m.On("ProcessDeltaSync", mock.Anything, mock.Anything).
					Return(nil, errors.New("ERROR: invalid input syntax for type timestamp (SQLSTATE 22007)"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal server error",
		},
		{
			name: "domain validation error",
			body: map[string]any{"device_id": "dev-1"},
			setupMock: func(m *MockServicer) {
				m.On("ProcessDeltaSync", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("delta sync: %w", sync.ErrChecksumMismatch))
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid checksum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			service, api := setup(t)
			tt.setupMock(service)

			// Act
			resp := api.Post("/api/sync/delta", tt.body)

			// Assert
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, resp.Body.String(), tt.wantBody)
			}
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_fullSync(t *testing.T) {
	// Arrange
	service, api := setup(t)
	service.On("ProcessFullSync", mock.Anything, sync.FullSyncRequest{DeviceID: "dev-1", IncludeDeleted: true}).
		Return(&sync.FullSyncResponse{
			Status:              sync.StatusSuccess,
			AllRecords:          []property.Record{{ID: "r1", Payload: property.Payload{"parcel_id": "P-1"}}},
			DeletedIDs:          []string{"r0"},
			TotalCount:          1,
			AlgorithmCompatible: true,
		}, nil)

	// Act
	resp := api.Post("/api/sync/full", map[string]any{"device_id": "dev-1", "include_deleted": true})

	// Assert
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body sync.FullSyncResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 1, body.TotalCount)
	assert.Equal(t, []string{"r0"}, body.DeletedIDs)
	service.AssertExpectations(t)
}

func TestHandler_batchSync(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		setupMock  func(*MockServicer)
		wantStatus int
	}{
		{
			name: "success",
			body: map[string]any{"device_id": "dev-1", "batch_size": 2, "start_from": "r2"},
			setupMock: func(m *MockServicer) {
				next := "r4"
				m.On("ProcessBatchSync", mock.Anything, sync.BatchSyncRequest{DeviceID: "dev-1", BatchSize: 2, StartFrom: "r2"}).
					Return(&sync.BatchSyncResponse{BatchData: []property.Record{}, NextBatchStart: &next, HasMoreData: true}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "batch size above maximum",
			body:       map[string]any{"device_id": "dev-1", "batch_size": 1001},
			setupMock:  func(*MockServicer) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "service rejects request",
			body: map[string]any{"device_id": "dev-1"},
			setupMock: func(m *MockServicer) {
				m.On("ProcessBatchSync", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: bad cursor", sync.ErrInvalidRequest))
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			service, api := setup(t)
			tt.setupMock(service)

			// Act
			resp := api.Post("/api/sync/batch", tt.body)

			// Assert
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_status(t *testing.T) {
	// Arrange
	service, api := setup(t)
	service.On("GetDeviceStatus", mock.Anything, "dev-1").Return(&sync.SyncStatus{
		DeviceID:            "dev-1",
		PendingChanges:      3,
		IsSyncRequired:      true,
		AlgorithmCompatible: true,
	}, nil)

	// Act
	resp := api.Get("/api/sync/status?device_id=dev-1")
	missing := api.Get("/api/sync/status")

	// Assert
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"pending_changes":3`)
	assert.Equal(t, http.StatusUnprocessableEntity, missing.Code)
	service.AssertExpectations(t)
}

func TestHandler_resolveConflicts(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "incompatible algorithm", err: sync.ErrIncompatible, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			service, api := setup(t)
			ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			call := service.On("ResolveConflicts", mock.Anything, mock.MatchedBy(func(req sync.ConflictResolutionRequest) bool {
				return req.DeviceID == "dev-1" && len(req.Resolutions) == 1 && req.Resolutions[0].Resolution == sync.UseLocal
			}))
			if tt.err != nil {
				call.Return(nil, tt.err)
			} else {
				call.Return(&sync.ConflictResolutionResponse{ResolvedCount: 1, Status: sync.StatusSuccess, Errors: []string{}}, nil)
			}

			// Act
			resp := api.Post("/api/sync/resolve-conflicts", map[string]any{
				"device_id": "dev-1",
				"resolutions": []map[string]any{{
					"record_id":        "r1",
					"local_timestamp":  ts,
					"remote_timestamp": ts.Add(time.Minute),
					"local_payload":    map[string]any{"amount": 10},
					"resolution":       "use_local",
				}},
			})

			// Assert
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_logs(t *testing.T) {
	// Arrange
	service, api := setup(t)
	service.On("GetLogs", mock.Anything, sync.LogsRequest{DeviceID: "dev-1", Page: 1, PageSize: 20}).
		Return(&sync.LogsResponse{Logs: []sync.SyncLog{}, Page: 1, PageSize: 20}, nil)
	service.On("GetLogs", mock.Anything, sync.LogsRequest{Page: 3, PageSize: 5}).
		Return(&sync.LogsResponse{Logs: []sync.SyncLog{}, Page: 3, PageSize: 5, TotalCount: 11}, nil)

	// Act
	defaults := api.Get("/api/sync/logs?device_id=dev-1")
	paged := api.Get("/api/sync/logs?page=3&page_size=5")
	tooLarge := api.Get("/api/sync/logs?page_size=500")

	// Assert
	assert.Equal(t, http.StatusOK, defaults.Code, defaults.Body.String())
	assert.Equal(t, http.StatusOK, paged.Code, paged.Body.String())
	assert.Contains(t, paged.Body.String(), `"total_count":11`)
	assert.Equal(t, http.StatusUnprocessableEntity, tooLarge.Code)
	service.AssertExpectations(t)
}

func TestHandler_metrics(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "no logs in window", err: sync.ErrNoMetrics, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			service, api := setup(t)
			call := service.On("GetDeviceMetrics", mock.Anything, "dev-1")
			if tt.err != nil {
				call.Return(nil, tt.err)
			} else {
				call.Return(&sync.SyncMetrics{DeviceID: "dev-1", Status: sync.StatusSuccess, ErrorsByCode: map[string]int{}}, nil)
			}

			// Act
			resp := api.Get("/api/sync/metrics/dev-1")

			// Assert
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			service.AssertExpectations(t)
		})
	}
}

func TestHandler_recentErrors(t *testing.T) {
	// Arrange
	service, api := setup(t)
	service.On("RecentErrors", mock.Anything, 5).Return(&sync.ErrorsResponse{
		Errors: []errtrack.Entry{{Code: string(sync.CodeValidation), Message: "bad amount"}},
		Total:  1,
	}, nil)

	// Act
	resp := api.Get("/api/sync/errors?limit=5")

	// Assert
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), "VALIDATION_ERROR")
	service.AssertExpectations(t)
}

func TestHandler_rateLimitedRoutes(t *testing.T) {
	// Arrange
	limiter := &countingLimiter{routes: map[string]int{}}
	handler := NewHandler(new(MockServicer), slog.Default(), huma.Middlewares{}, limiter)
	_, api := humatest.New(t)

	// Act
	handler.SetupRoutes(api)

	// Assert
	assert.Equal(t, map[string]int{
		"delta":   20,
		"full":    5,
		"batch":   10,
		"status":  100,
		"resolve": 10,
		"logs":    20,
		"metrics": 20,
		"errors":  20,
	}, limiter.routes)
}
