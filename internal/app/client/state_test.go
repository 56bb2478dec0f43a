package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_SaveLoad(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	ts := time.Date(2024, 3, 1, 10, 0, 0, 123000, time.UTC)
	st := &State{DeviceID: "dev-1", LastSyncTimestamp: ts, LastBatchCursor: "r9"}

	// Act
	require.NoError(t, st.Save(path))
	loaded, err := LoadState(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "dev-1", loaded.DeviceID)
	assert.True(t, loaded.LastSyncTimestamp.Equal(ts))
	assert.Equal(t, "r9", loaded.LastBatchCursor)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is removed")
}

func TestLoadState(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o600))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "missing file gives empty state", path: filepath.Join(dir, "none.json")},
		{name: "broken file", path: broken, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := LoadState(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, st.LastSyncTimestamp.IsZero())
		})
	}
}

func TestReadChanges(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "changes.json")
	body := `[{"record_id":"r1","operation":"update","payload":{"amount":12},"timestamp":"2024-03-01T10:00:00Z"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	// Act
	changes, err := ReadChanges(path)

	// Assert
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, sync.OpUpdate, changes[0].Operation)
	assert.Equal(t, 12.0, changes[0].Payload["amount"])

	_, err = ReadChanges(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewCreateChange(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name    string
		payload property.Payload
		wantErr bool
	}{
		{name: "valid", payload: property.Payload{"parcel_id": "P-1", "amount": 1500}},
		{name: "missing amount", payload: property.Payload{"parcel_id": "P-1"}, wantErr: true},
		{name: "unknown field", payload: property.Payload{"parcel_id": "P-1", "amount": 1, "color": "red"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := NewCreateChange(tt.payload, "dev-1", now)
			if tt.wantErr {
				var vErr *property.ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, ch.RecordID, 36)
			assert.Equal(t, sync.OpCreate, ch.Operation)
			assert.Equal(t, 1500.0, ch.Payload["amount"])
			assert.Equal(t, time.UTC, ch.Timestamp.Location())
			sum, err := ch.Payload.Checksum()
			require.NoError(t, err)
			assert.Equal(t, sum, ch.Checksum)
		})
	}
}
