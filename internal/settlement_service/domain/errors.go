package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a referenced charge or billable source does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict indicates a business-rule collision: a source already billed,
	// or a second distinct transaction reference against a paid charge.
	ErrConflict = errors.New("conflict")
	// ErrInvalidStateTransition indicates a payment or refund was attempted from
	// a status that forbids it.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidation indicates declared input disagrees with recomputed values.
	ErrValidation = errors.New("validation failed")
	// ErrTransient indicates a retryable storage failure (sequence or inventory
	// store unavailable). Callers may retry; payment retries are idempotent.
	ErrTransient = errors.New("transient storage failure")
	// ErrInsufficientStock indicates a stock adjustment would drive inventory negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field-level failures for one operation.
// It unwraps to ErrValidation so callers can match with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
