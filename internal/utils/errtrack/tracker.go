// Package errtrack хранит ограниченную историю ошибок синхронизации.
package errtrack

import (
	gosync "sync"
	"time"
)

const DefaultCapacity = 100

// Entry: одна зафиксированная ошибка
type Entry struct {
	Time      time.Time `json:"time"`
	Code      string    `json:"code"`
	DeviceID  string    `json:"device_id,omitempty"`
	Operation string    `json:"operation,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Message   string    `json:"message"`
}

// Tracker: кольцевой буфер. Старые записи вытесняются новыми.
type Tracker struct {
	mu      gosync.Mutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
}

func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		entries: make([]Entry, capacity),
		now:     time.Now,
	}
}

// Record добавляет запись, проставляя время, если оно не задано
func (t *Tracker) Record(e Entry) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = t.now().UTC()
	}
	t.entries[t.next] = e
	t.next = (t.next + 1) % len(t.entries)
	if t.next == 0 {
		t.full = true
	}
}

// Len возвращает число хранимых записей
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size()
}

// Recent возвращает до limit последних записей, новые первыми.
// limit <= 0 означает все.
func (t *Tracker) Recent(limit int) []Entry {
	if t == nil {
		return []Entry{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.size()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (t.next - i + len(t.entries)) % len(t.entries)
		out = append(out, t.entries[idx])
	}
	return out
}

// CountByCode группирует записи устройства по коду ошибки
func (t *Tracker) CountByCode(deviceID string) map[string]int {
	counts := make(map[string]int)
	for _, e := range t.Recent(0) {
		if deviceID != "" && e.DeviceID != deviceID {
			continue
		}
		counts[e.Code]++
	}
	return counts
}

func (t *Tracker) size() int {
	if t.full {
		return len(t.entries)
	}
	return t.next
}
