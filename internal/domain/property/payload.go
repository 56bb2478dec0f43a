package property

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Payload: набор бизнес-полей записи.
// Значения ограничены JSON-скалярами: string, float64, bool, nil.
type Payload map[string]any

// Clone возвращает поверхностную копию
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equal сравнивает наборы полей. Отсутствующий ключ равен nil.
func (p Payload) Equal(other Payload) bool {
	return len(DiffKeys(p, other)) == 0
}

// String возвращает строковое поле
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Number возвращает числовое поле
func (p Payload) Number(key string) (float64, bool) {
	v, ok := toFloat(p[key])
	return v, ok
}

// Checksum: hex sha256 канонического JSON (ключи отсортированы)
func (p Payload) Checksum() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DiffKeys возвращает отсортированный список ключей, присутствующих
// хотя бы в одном наборе, значения которых различаются.
func DiffKeys(local, remote Payload) []string {
	keys := make(map[string]struct{}, len(local)+len(remote))
	for k := range local {
		keys[k] = struct{}{}
	}
	for k := range remote {
		keys[k] = struct{}{}
	}

	diff := make([]string, 0)
	for k := range keys {
		if !valuesEqual(local[k], remote[k]) {
			diff = append(diff, k)
		}
	}
	sort.Strings(diff)
	return diff
}

func valuesEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
