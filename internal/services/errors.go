// Package services defines the business logic for voucher gift submission
// and delivery. This file centralizes service-level error values so that they
// can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"strings"

	"github.com/tbourn/go-voucher-gift/internal/repo"
)

var (
	// ErrVoucherNotFound indicates that the requested voucher does not exist.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrPersistFailed wraps failures writing the voucher record.
	ErrPersistFailed = errors.New("failed to persist voucher gift")

	// ErrPublishFailed wraps failures enqueueing the delivery message. The
	// voucher and its outbox entry are already stored when this is returned.
	ErrPublishFailed = errors.New("failed to publish delivery message")

	// ErrInvalidTransition is returned when a status update would move a
	// voucher backwards or out of a terminal state. It is the repository's
	// sentinel, so errors.Is matches at either layer.
	ErrInvalidTransition = repo.ErrInvalidTransition

	errKeyClaimed = errors.New("idempotency key claimed concurrently")
)

// FieldError is a single violated rule, attributed to a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rule a request violated, in a stable order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field has at least one error.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
