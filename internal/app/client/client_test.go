package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"propsync/internal/app/client/config"
	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTransport) Delta(ctx context.Context, req sync.DeltaSyncRequest) (*sync.DeltaSyncResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.DeltaSyncResponse), args.Error(1)
}

func (m *MockTransport) Full(ctx context.Context, req sync.FullSyncRequest) (*sync.FullSyncResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.FullSyncResponse), args.Error(1)
}

func (m *MockTransport) Batch(ctx context.Context, req sync.BatchSyncRequest) (*sync.BatchSyncResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.BatchSyncResponse), args.Error(1)
}

func (m *MockTransport) Resolve(ctx context.Context, req sync.ConflictResolutionRequest) (*sync.ConflictResolutionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.ConflictResolutionResponse), args.Error(1)
}

func (m *MockTransport) Status(ctx context.Context, deviceID string) (*sync.SyncStatus, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncStatus), args.Error(1)
}

func (m *MockTransport) Logs(ctx context.Context, req sync.LogsRequest) (*sync.LogsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.LogsResponse), args.Error(1)
}

func (m *MockTransport) Metrics(ctx context.Context, deviceID string) (*sync.SyncMetrics, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.SyncMetrics), args.Error(1)
}

func newTestApp(t *testing.T) (*App, *MockTransport) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DeviceID:         "dev-1",
		AlgorithmVersion: "1.0.0",
		AppVersion:       "1.2.0",
		StatePath:        filepath.Join(dir, "state.json"),
		ReplicaPath:      filepath.Join(dir, "replica.db"),
		RetryAttempts:    1,
	}

	replica, err := OpenReplica(cfg.ReplicaPath, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = replica.Close() })

	transport := new(MockTransport)
	return newApp(cfg, discardLogger(), transport, replica, &State{}), transport
}

func TestApp_Delta(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	ctx := context.Background()
	newTS := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	changes := []sync.Change{{RecordID: "r1", Operation: sync.OpCreate, Payload: property.Payload{"parcel_id": "P-1", "amount": 10.0}}}

	transport.On("Delta", mock.Anything, mock.MatchedBy(func(req sync.DeltaSyncRequest) bool {
		return req.DeviceID == "dev-1" && req.LastSyncTimestamp.IsZero() &&
			req.AppVersion == "1.2.0" && req.Changes[0].OriginDevice == "dev-1"
	})).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusSuccess,
		ChangesApplied:   1,
		NewSyncTimestamp: newTS,
		ServerChanges: []sync.Change{{
			RecordID:     "srv-1",
			Operation:    sync.OpCreate,
			Payload:      property.Payload{"parcel_id": "S-1", "amount": 99.0},
			Timestamp:    newTS.Add(-time.Minute),
			OriginDevice: "dev-2",
		}},
	}, nil).Once()

	// Act
	result, err := app.Delta(ctx, changes, false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Nil(t, result.Retry)
	assert.True(t, app.State().LastSyncTimestamp.Equal(newTS))

	saved, err := LoadState(app.config.StatePath)
	require.NoError(t, err)
	assert.True(t, saved.LastSyncTimestamp.Equal(newTS))
	assert.Equal(t, "dev-1", saved.DeviceID)

	local, err := app.LocalRecords(ctx)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "srv-1", local[0].ID)
	assert.Equal(t, "dev-2", local[0].LastWriter)
	transport.AssertExpectations(t)
}

func TestApp_DeltaRetryRejected(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	changes := []sync.Change{
		{RecordID: "ok", Operation: sync.OpCreate, Payload: property.Payload{"parcel_id": "P-1", "amount": 1.0}},
		{RecordID: "busy", Operation: sync.OpUpdate, Payload: property.Payload{"amount": 2.0}},
		{RecordID: "bad", Operation: sync.OpUpdate, Payload: property.Payload{"amount": -1.0}},
	}

	transport.On("Delta", mock.Anything, mock.MatchedBy(func(req sync.DeltaSyncRequest) bool {
		return len(req.Changes) == 3
	})).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusPartial,
		ChangesApplied:   1,
		ChangesRejected:  2,
		NewSyncTimestamp: ts,
		RejectedDetails: []sync.RejectedChange{
			{RecordID: "busy", ErrorCode: sync.CodeInternal, Recoverable: true},
			{RecordID: "bad", ErrorCode: sync.CodeValidation, Recoverable: false},
		},
	}, nil).Once()
	transport.On("Delta", mock.Anything, mock.MatchedBy(func(req sync.DeltaSyncRequest) bool {
		return len(req.Changes) == 1 && req.Changes[0].RecordID == "busy" && req.LastSyncTimestamp.Equal(ts)
	})).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusSuccess,
		ChangesApplied:   1,
		NewSyncTimestamp: ts.Add(time.Second),
	}, nil).Once()

	// Act
	result, err := app.Delta(context.Background(), changes, true)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result.Retry)
	assert.Equal(t, 1, result.Retry.ChangesApplied)
	assert.True(t, app.State().LastSyncTimestamp.Equal(ts.Add(time.Second)))
	transport.AssertExpectations(t)
}

func TestApp_DeltaFailedKeepsTimestamp(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	prev := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	app.state.LastSyncTimestamp = prev
	transport.On("Delta", mock.Anything, mock.Anything).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusFailed,
		NewSyncTimestamp: prev.Add(time.Hour),
	}, nil)

	// Act
	_, err := app.Delta(context.Background(), nil, false)

	// Assert
	require.NoError(t, err)
	assert.True(t, app.State().LastSyncTimestamp.Equal(prev))
}

func TestApp_DeltaReplicaFailureKeepsState(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	prev := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	app.state.LastSyncTimestamp = prev
	require.NoError(t, app.replica.Close())

	transport.On("Delta", mock.Anything, mock.Anything).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusSuccess,
		NewSyncTimestamp: prev.Add(time.Hour),
		ServerChanges: []sync.Change{{
			RecordID:  "srv-1",
			Operation: sync.OpUpdate,
			Payload:   property.Payload{"parcel_id": "S-1", "amount": 1.0},
			Timestamp: prev.Add(time.Minute),
		}},
	}, nil).Once()

	// Act
	_, err := app.Delta(context.Background(), nil, false)

	// Assert
	require.Error(t, err)
	assert.ErrorContains(t, err, "apply server changes to replica")
	assert.True(t, app.State().LastSyncTimestamp.Equal(prev))

	_, statErr := os.Stat(app.config.StatePath)
	assert.True(t, os.IsNotExist(statErr), "state file must not be written")
	transport.AssertExpectations(t)
}

func TestApp_DeltaFollowsTruncatedServerDelta(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	ctx := context.Background()
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	serverChange := func(id string, ts time.Time) sync.Change {
		return sync.Change{
			RecordID:     id,
			Operation:    sync.OpUpdate,
			Payload:      property.Payload{"parcel_id": id, "amount": 1.0},
			Timestamp:    ts,
			OriginDevice: "dev-2",
		}
	}

	transport.On("Delta", mock.Anything, mock.MatchedBy(func(req sync.DeltaSyncRequest) bool {
		return req.ServerCursor == "" && req.LastSyncTimestamp.IsZero()
	})).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusSuccess,
		NewSyncTimestamp: t1,
		ServerCursor:     "a",
		HasMoreChanges:   true,
		ServerChanges:    []sync.Change{serverChange("a", t1)},
	}, nil).Once()
	transport.On("Delta", mock.Anything, mock.MatchedBy(func(req sync.DeltaSyncRequest) bool {
		return req.ServerCursor == "a" && req.LastSyncTimestamp.Equal(t1) && len(req.Changes) == 0
	})).Return(&sync.DeltaSyncResponse{
		Status:           sync.StatusSuccess,
		NewSyncTimestamp: t2,
		ServerChanges:    []sync.Change{serverChange("b", t1)},
	}, nil).Once()

	// Act
	result, err := app.Delta(ctx, nil, false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.Applied)
	assert.True(t, app.State().LastSyncTimestamp.Equal(t2))
	assert.Empty(t, app.State().ServerCursor)

	local, err := app.LocalRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, local, 2)
	transport.AssertExpectations(t)
}

func TestApp_Full(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := app.replica.ApplyRecords(ctx, []property.Record{
		{ID: "gone", Payload: property.Payload{"parcel_id": "G"}, LastModified: ts.Add(-time.Hour)},
	})
	require.NoError(t, err)

	transport.On("Full", mock.Anything, sync.FullSyncRequest{
		DeviceID:         "dev-1",
		IncludeDeleted:   true,
		AlgorithmVersion: "1.0.0",
		AppVersion:       "1.2.0",
	}).Return(&sync.FullSyncResponse{
		Status:        sync.StatusSuccess,
		SyncTimestamp: ts,
		TotalCount:    2,
		AllRecords: []property.Record{
			{ID: "a", Payload: property.Payload{"parcel_id": "A"}, LastModified: ts},
			{ID: "b", Payload: property.Payload{"parcel_id": "B"}, LastModified: ts},
		},
		DeletedIDs: []string{"gone", "never-seen"},
	}, nil)

	// Act
	result, err := app.Full(ctx, true)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 1, result.Deleted)
	assert.True(t, app.State().LastFullSync.Equal(ts))

	local, err := app.LocalRecords(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(local))
	for _, r := range local {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestApp_BatchAll(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	next := "b"
	remaining := 1

	transport.On("Batch", mock.Anything, mock.MatchedBy(func(req sync.BatchSyncRequest) bool {
		return req.StartFrom == "" && req.BatchSize == 2 && req.IncludeCalculations
	})).Return(&sync.BatchSyncResponse{
		BatchData: []property.Record{
			{ID: "a", Payload: property.Payload{"parcel_id": "A"}, LastModified: ts},
			{ID: "b", Payload: property.Payload{"parcel_id": "B"}, LastModified: ts},
		},
		NextBatchStart:      &next,
		HasMoreData:         true,
		BatchCount:          2,
		TotalRemaining:      &remaining,
		AlgorithmCompatible: true,
	}, nil).Once()
	transport.On("Batch", mock.Anything, mock.MatchedBy(func(req sync.BatchSyncRequest) bool {
		return req.StartFrom == "b"
	})).Return(&sync.BatchSyncResponse{
		BatchData:           []property.Record{{ID: "c", Payload: property.Payload{"parcel_id": "C"}, LastModified: ts}},
		BatchCount:          1,
		AlgorithmCompatible: true,
	}, nil).Once()

	// Act
	result, err := app.Batch(context.Background(), 2, "", true)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Records)
	assert.False(t, result.HasMoreData)
	assert.Empty(t, app.State().LastBatchCursor)
	transport.AssertExpectations(t)
}

func TestApp_BatchIncompatible(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	transport.On("Batch", mock.Anything, mock.Anything).
		Return(&sync.BatchSyncResponse{BatchData: []property.Record{}, AlgorithmCompatible: false}, nil)

	// Act
	_, err := app.Batch(context.Background(), 10, "", false)

	// Assert
	assert.ErrorContains(t, err, "incompatible")
}

func TestApp_Resolve(t *testing.T) {
	// Arrange
	app, transport := newTestApp(t)
	conflicts := []sync.Conflict{{RecordID: "r1", Resolution: sync.AskUser}, {RecordID: "r2"}}
	transport.On("Resolve", mock.Anything, mock.MatchedBy(func(req sync.ConflictResolutionRequest) bool {
		return req.DeviceID == "dev-1" && len(req.Resolutions) == 2 &&
			req.Resolutions[0].Resolution == sync.UseRemote && req.Resolutions[1].Resolution == sync.UseRemote
	})).Return(&sync.ConflictResolutionResponse{ResolvedCount: 2, Status: sync.StatusSuccess}, nil)

	// Act
	resp, err := app.Resolve(context.Background(), sync.UseRemote, conflicts)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ResolvedCount)
	assert.Equal(t, sync.AskUser, conflicts[0].Resolution, "input is not modified")
}

func TestNewApp_ForeignState(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	cfg := &config.Config{DeviceID: "dev-1", StatePath: filepath.Join(dir, "s.json"), ReplicaPath: filepath.Join(dir, "r.db")}
	replica, err := OpenReplica(cfg.ReplicaPath, discardLogger())
	require.NoError(t, err)
	defer replica.Close()
	foreign := &State{DeviceID: "other", LastSyncTimestamp: time.Now()}

	// Act
	app := newApp(cfg, discardLogger(), new(MockTransport), replica, foreign)

	// Assert
	assert.True(t, app.State().LastSyncTimestamp.IsZero())
	assert.Equal(t, "dev-1", app.State().DeviceID)
}

func TestFromContext(t *testing.T) {
	app, _ := newTestApp(t)

	got, err := FromContext(NewContext(context.Background(), app))
	require.NoError(t, err)
	assert.Same(t, app, got)

	_, err = FromContext(context.Background())
	assert.Error(t, err)
}
