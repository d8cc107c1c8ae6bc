// Package eeserrors defines the typed error taxonomy shared across the
// embedding core. Every fallible operation returns one of these kinds (or
// nil); callers dispatch on kind with errors.As, never on message text.
package eeserrors

import (
	"errors"
	"fmt"
	"time"
)

// ProviderErrorKind distinguishes the four failure modes a provider call
// can surface.
type ProviderErrorKind string

const (
	ProviderAuthentication ProviderErrorKind = "authentication"
	ProviderRateLimit      ProviderErrorKind = "rate_limit"
	ProviderModel          ProviderErrorKind = "model"
	ProviderConnection     ProviderErrorKind = "connection"
)

// DatabaseErrorKind distinguishes database-layer failures.
type DatabaseErrorKind string

const (
	DatabaseQuery      DatabaseErrorKind = "query"
	DatabaseConnection DatabaseErrorKind = "connection"
	DatabaseMigration  DatabaseErrorKind = "migration"
)

// ValidationError reports a malformed or out-of-range request. Never
// retried; always maps to a 4xx at the HTTP boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ProviderError carries the provider tag, the model name that was
// attempted, a human message, and an optional retry-after hint for
// rate-limit responses.
type ProviderError struct {
	Kind       ProviderErrorKind
	Provider   string
	Model      string
	Message    string
	RetryAfter *time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s [%s] model=%s: %s", e.Provider, e.Kind, e.Model, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether retrying the same request could plausibly
// succeed. Authentication and Model errors are never retryable.
func (e *ProviderError) IsRetryable() bool {
	return e.Kind == ProviderConnection || e.Kind == ProviderRateLimit
}

// DatabaseError wraps a storage-layer failure with its kind and cause.
// A Migration-kind error means the caller must treat the database as
// being in an inconsistent state; there is no partial rollback.
type DatabaseError struct {
	Kind    DatabaseErrorKind
	Message string
	Cause   error
}

func (e *DatabaseError) Error() string {
	if e.Kind == DatabaseMigration {
		return fmt.Sprintf("database migration error (inconsistent state, manual recovery required): %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("database %s error: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// ParseError reports a stored vector (or other column) that could not be
// decoded back into its Go representation.
type ParseError struct {
	Column  string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse column %q: %s: %v", e.Column, e.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ErrNotFound is a sentinel used where no row matched an exact lookup
// (findByUri, Get-by-id). It is intentionally not a typed struct: callers
// only ever need errors.Is, never structured fields, for "not found".
var ErrNotFound = errors.New("not found")
