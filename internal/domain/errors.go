package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrUnsupportedPlan = errors.New("unsupported plan")
	ErrConflict        = errors.New("conflict")
)

// ValidationError describes a malformed admission or ledger request. It is
// surfaced synchronously to the caller and never retried.
type ValidationError struct {
	Message       string
	MissingFields []string
}

func (e *ValidationError) Error() string {
	if len(e.MissingFields) > 0 {
		return "missing required fields: " + strings.Join(e.MissingFields, ", ")
	}
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}
