// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "subscription", "progression", "billing"
	Op      string // Operation that failed, e.g., "Get", "Apply"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Subscription domain errors
var (
	ErrSubscriptionNotFound = NewDomainError("subscription", "Get", ErrNotFound, "subscription not found")
	ErrSubscriptionExists   = NewDomainError("subscription", "Create", ErrAlreadyExists, "subscription already exists")
	ErrInvalidUserID        = NewDomainError("subscription", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidStatus        = NewDomainError("subscription", "Validate", ErrInvalidInput, "invalid subscription status")
)

// Progression domain errors
var (
	ErrProgressionNotFound = NewDomainError("progression", "Get", ErrNotFound, "progression not found")
	ErrProgramLocked       = NewDomainError("progression", "Advance", ErrForbidden, "program is locked for this access level")
	ErrDayOutOfRange       = NewDomainError("progression", "Advance", ErrValueOutOfRange, "day is outside program duration")
)

// Billing / external service errors
var (
	ErrBillingUnavailable     = NewDomainError("billing", "Request", ErrServiceUnavailable, "billing provider is unavailable")
	ErrBillingRateLimited     = NewDomainError("billing", "Request", ErrRateLimited, "billing provider rate limit exceeded")
	ErrBillingTimeout         = NewDomainError("billing", "Request", ErrTimeout, "billing provider request timeout")
	ErrBillingInvalidResponse = NewDomainError("billing", "Parse", ErrInvalidFormat, "invalid response from billing provider")
	ErrUntrustedRedirect      = NewDomainError("billing", "Validate", ErrForbidden, "checkout redirect host is not allow-listed")
	ErrInvalidSignature       = NewDomainError("billing", "Verify", ErrUnauthorized, "webhook signature verification failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
// Callers use this to tell "confirmed free" apart from "unknown due to
// a transient failure" when deriving access.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
