package sync

import (
	"context"
	"io"
	"time"

	"propsync/internal/domain/property"

	"github.com/stretchr/testify/mock"
	"golang.org/x/exp/slog"
)

// MockTx: мок транзакции хранилища
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Get(ctx context.Context, id string) (*property.Record, error) {
	args := m.Called(ctx, id)
	// Безопасное приведение nil к указателю
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*property.Record), args.Error(1)
}

func (m *MockTx) GetMany(ctx context.Context, ids []string) (map[string]*property.Record, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*property.Record), args.Error(1)
}

func (m *MockTx) Create(ctx context.Context, rec *property.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockTx) Update(ctx context.Context, rec *property.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockTx) ListChangedSince(ctx context.Context, cursor property.ChangeCursor, excludeWriter string, limit int) ([]property.Record, error) {
	args := m.Called(ctx, cursor, excludeWriter, limit)
	return args.Get(0).([]property.Record), args.Error(1)
}

func (m *MockTx) CountChangedSince(ctx context.Context, since time.Time, excludeWriter string) (int, error) {
	args := m.Called(ctx, since, excludeWriter)
	return args.Int(0), args.Error(1)
}

func (m *MockTx) ListActive(ctx context.Context) ([]property.Record, error) {
	args := m.Called(ctx)
	return args.Get(0).([]property.Record), args.Error(1)
}

func (m *MockTx) ListDeletedIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTx) ListActiveAfter(ctx context.Context, cursor string, limit int) ([]property.Record, error) {
	args := m.Called(ctx, cursor, limit)
	return args.Get(0).([]property.Record), args.Error(1)
}

func (m *MockTx) CountActiveAfter(ctx context.Context, cursor string) (int, error) {
	args := m.Called(ctx, cursor)
	return args.Int(0), args.Error(1)
}

func (m *MockTx) InsertLog(ctx context.Context, entry *SyncLog) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockTx) UpdateLog(ctx context.Context, entry *SyncLog) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockTx) LastSuccessfulLog(ctx context.Context, deviceID string) (*SyncLog, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SyncLog), args.Error(1)
}

func (m *MockTx) CountUnresolvedConflicts(ctx context.Context, deviceID string) (int, error) {
	args := m.Called(ctx, deviceID)
	return args.Int(0), args.Error(1)
}

func (m *MockTx) ListLogs(ctx context.Context, filter LogFilter) ([]SyncLog, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]SyncLog), args.Int(1), args.Error(2)
}

func (m *MockTx) ListLogsSince(ctx context.Context, deviceID string, since time.Time) ([]SyncLog, error) {
	args := m.Called(ctx, deviceID, since)
	return args.Get(0).([]SyncLog), args.Error(1)
}

func (m *MockTx) Begin(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Tx), args.Error(1)
}

func (m *MockTx) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockStore: мок хранилища, выдающий заранее подготовленную транзакцию
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Begin(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Tx), args.Error(1)
}

var testBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fixedClock возвращает часы, каждый вызов которых сдвигается на step
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
