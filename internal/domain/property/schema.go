package property

import (
	"fmt"
	"slices"
	"sort"
)

// Kind: допустимый тип значения поля
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Field описывает одно поле схемы
type Field struct {
	Kind     Kind
	Required bool
	NonNeg   bool
	Enum     []string
}

// Schema: граница валидации payload на входе в движок синхронизации.
// Ядро не знает о семантике полей, ему нужен только нормализованный набор ключей.
type Schema struct {
	fields map[string]Field
}

func NewSchema(fields map[string]Field) *Schema {
	return &Schema{fields: fields}
}

// DefaultSchema: поля объекта недвижимости
func DefaultSchema() *Schema {
	return NewSchema(map[string]Field{
		"parcel_id":      {Kind: KindString, Required: true},
		"amount":         {Kind: KindNumber, Required: true, NonNeg: true},
		"acreage":        {Kind: KindNumber, NonNeg: true},
		"assessed_value": {Kind: KindNumber, NonNeg: true},
		"year_sold":      {Kind: KindNumber, NonNeg: true},
		"description":    {Kind: KindString},
		"county":         {Kind: KindString},
		"owner_name":     {Kind: KindString},
		"status": {Kind: KindString, Enum: []string{
			StatusNew, StatusReviewing, StatusBidReady, StatusRejected, StatusPurchased,
		}},
	})
}

// Validate проверяет payload и возвращает нормализованную копию (числа приводятся к float64)
func (s *Schema) Validate(p Payload) (Payload, error) {
	if len(p) == 0 {
		return nil, &ValidationError{Reason: "payload is empty"}
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Payload, len(p))
	for _, key := range keys {
		field, ok := s.fields[key]
		if !ok {
			return nil, &ValidationError{Field: key, Reason: "unknown field"}
		}
		value, err := field.normalize(p[key])
		if err != nil {
			return nil, &ValidationError{Field: key, Reason: err.Error()}
		}
		out[key] = value
	}

	required := make([]string, 0)
	for key, field := range s.fields {
		if field.Required {
			required = append(required, key)
		}
	}
	sort.Strings(required)
	for _, key := range required {
		if out[key] == nil {
			return nil, &ValidationError{Field: key, Reason: "field is required"}
		}
	}

	return out, nil
}

func (f Field) normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", f.Kind, v)
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
			return nil, fmt.Errorf("value %q is not one of %v", s, f.Enum)
		}
		return s, nil
	case KindNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", f.Kind, v)
		}
		if f.NonNeg && n < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return n, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", f.Kind, v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported kind")
	}
}
