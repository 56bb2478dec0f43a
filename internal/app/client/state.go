package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State: то, что устройство помнит между запусками
type State struct {
	DeviceID          string    `json:"device_id"`
	LastSyncTimestamp time.Time `json:"last_sync_timestamp"`
	ServerCursor      string    `json:"server_cursor,omitempty"`
	LastFullSync      time.Time `json:"last_full_sync,omitempty"`
	LastBatchCursor   string    `json:"last_batch_cursor,omitempty"`
}

// LoadState читает файл состояния. Отсутствующий файл дает пустое состояние.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	return st, nil
}

// Save записывает состояние через временный файл и переименование
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
