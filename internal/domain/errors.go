package domain

import "fmt"

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrDuplicate indicates an operation that was already applied
// (idempotency check).
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("duplicate operation: %s", e.Key)
}

// ErrUnauthorized indicates invalid credentials, token or webhook
// signature.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrPaymentDeclined indicates the provider refused the charge.
type ErrPaymentDeclined struct {
	Provider string
	Reason   string
}

func (e *ErrPaymentDeclined) Error() string {
	return fmt.Sprintf("payment declined [%s]: %s", e.Provider, e.Reason)
}

// ErrUndeliverable indicates the requested city is outside every active
// delivery zone.
type ErrUndeliverable struct {
	City string
}

func (e *ErrUndeliverable) Error() string {
	return fmt.Sprintf("city not deliverable: %s", e.City)
}

// ErrEventIgnored indicates a webhook event type we deliberately do
// not track. Callers acknowledge it so the provider stops retrying.
type ErrEventIgnored struct {
	Type string
}

func (e *ErrEventIgnored) Error() string {
	return fmt.Sprintf("webhook event ignored: %s", e.Type)
}

// ErrConflict indicates a state conflict (e.g. a second pending
// transaction for the same order).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
