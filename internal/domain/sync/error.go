package sync

import (
	"errors"
	"strings"

	"propsync/internal/domain/property"
)

var (
	ErrInvalidRequest    = errors.New("invalid sync request")
	ErrLogNotFound       = errors.New("sync log not found")
	ErrLogFinalized      = errors.New("sync log already has a terminal status")
	ErrNoMetrics         = errors.New("no sync metrics for device")
	ErrEmptyLocalPayload = errors.New("local payload is empty")
	ErrUnknownStrategy   = errors.New("unknown resolution strategy")
	ErrChecksumMismatch  = errors.New("invalid checksum: payload does not match")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTxDone            = errors.New("transaction already finished")
	ErrIncompatible      = errors.New("scoring algorithm is incompatible")
)

// ErrorCode: категория ошибки применения изменения
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeConstraint   ErrorCode = "CONSTRAINT_VIOLATION"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodePermission   ErrorCode = "PERMISSION_DENIED"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
	CodeIncompatible ErrorCode = "COMPATIBILITY_ERROR"
)

// Recoverable: повтор того же ввода для ошибок валидации и ограничений снова завершится ошибкой
func (c ErrorCode) Recoverable() bool {
	return c != CodeValidation && c != CodeConstraint
}

// IsValidation распознает ошибки валидации только по типу и sentinel-значениям, без разбора текста
func IsValidation(err error) bool {
	var vErr *property.ValidationError
	return errors.As(err, &vErr) ||
		errors.Is(err, property.ErrInvalidData) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrEmptyLocalPayload) ||
		errors.Is(err, ErrUnknownStrategy)
}

// Categorize относит ошибку к категории: сначала по типу, затем по тексту
func Categorize(err error) ErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case IsValidation(err):
		return CodeValidation
	case errors.Is(err, property.ErrAlreadyExists), errors.Is(err, property.ErrConstraint):
		return CodeConstraint
	case errors.Is(err, property.ErrNotFound), errors.Is(err, property.ErrDeleted):
		return CodeNotFound
	case errors.Is(err, ErrPermissionDenied):
		return CodePermission
	case errors.Is(err, ErrIncompatible):
		return CodeIncompatible
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "validation"), strings.Contains(msg, "invalid"):
		return CodeValidation
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "duplicate"),
		strings.Contains(msg, "constraint"), strings.Contains(msg, "integrity"):
		return CodeConstraint
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"):
		return CodeNotFound
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "forbidden"):
		return CodePermission
	}

	return CodeInternal
}

// NewRejectedChange оформляет ошибку применения изменения
func NewRejectedChange(ch Change, err error) RejectedChange {
	code := Categorize(err)
	return RejectedChange{
		RecordID:    ch.RecordID,
		Operation:   ch.Operation,
		Reason:      err.Error(),
		ErrorCode:   code,
		Recoverable: code.Recoverable(),
	}
}
