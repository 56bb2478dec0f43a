package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"

	"github.com/google/uuid"
)

// ReadChanges читает JSON-массив изменений
func ReadChanges(path string) ([]sync.Change, error) {
	var changes []sync.Change
	if err := readJSON(path, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// ReadConflicts читает JSON-массив конфликтов, например сохраненный из ответа дельты
func ReadConflicts(path string) ([]sync.Conflict, error) {
	var conflicts []sync.Conflict
	if err := readJSON(path, &conflicts); err != nil {
		return nil, err
	}
	return conflicts, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// NewCreateChange собирает изменение create со свежим uuid и контрольной суммой.
// Payload проверяется схемой до отправки, чтобы не тратить запрос на заведомо отклоняемое изменение.
func NewCreateChange(payload property.Payload, deviceID string, now time.Time) (sync.Change, error) {
	normalized, err := property.DefaultSchema().Validate(payload)
	if err != nil {
		return sync.Change{}, err
	}

	checksum, err := normalized.Checksum()
	if err != nil {
		return sync.Change{}, err
	}

	return sync.Change{
		RecordID:     uuid.NewString(),
		Operation:    sync.OpCreate,
		Payload:      normalized,
		Timestamp:    now.UTC(),
		OriginDevice: deviceID,
		Checksum:     checksum,
	}, nil
}
