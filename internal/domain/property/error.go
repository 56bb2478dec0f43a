package property

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("property not found")
	ErrAlreadyExists = errors.New("property already exists: duplicate id")
	ErrConstraint    = errors.New("integrity constraint violation")
	ErrDeleted       = errors.New("property is deleted")
	ErrInvalidData   = errors.New("invalid property data")
)

// ValidationError описывает поле, не прошедшее проверку схемы
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidData
}
