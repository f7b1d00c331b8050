package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUploadFailed        = errors.New("upload failed")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)

// ValidationError reports a submission rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProviderError reports a failure from the generation provider during task
// creation. RateLimited distinguishes 429s so callers can surface a retry hint.
type ProviderError struct {
	StatusCode  int
	Message     string
	RateLimited bool
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider rejected request (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("provider rejected request: %s", e.Message)
}
