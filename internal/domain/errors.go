package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Error types for consistent error handling across the back-office.

// ErrNotFound indicates a resource was not found (or is hidden by tenancy).
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

// ErrUpstreamUnavailable is returned when a collaborator cannot be reached
// and the user-visible operation depends on it (e.g. SSO).
type ErrUpstreamUnavailable struct {
	Service string
	Err     error
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error {
	return e.Err
}

// ErrValidation indicates bad input. Fields holds one message per offending
// field; Field/Message are kept for the single-field case.
type ErrValidation struct {
	Field   string
	Message string
	Fields  map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ErrValidation {
	return &ErrValidation{Field: field, Message: message, Fields: map[string]string{field: message}}
}

// NewFieldErrors builds a validation error from a field map, or returns nil
// when the map is empty. The first field in sorted order is the primary one.
func NewFieldErrors(fields map[string]string) *ErrValidation {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &ErrValidation{Field: keys[0], Message: fields[keys[0]], Fields: fields}
}

func (e *ErrValidation) Error() string {
	if len(e.Fields) <= 1 {
		return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// FieldErrors returns the field-keyed message map.
func (e *ErrValidation) FieldErrors() map[string]string {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	return map[string]string{e.Field: e.Message}
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates a missing or invalid token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists or a unique key is taken.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnprocessable indicates a well-formed request that cannot be executed
// in the current state (e.g. messaging an application without a CX manager).
type ErrUnprocessable struct {
	Message string
}

func (e *ErrUnprocessable) Error() string {
	return e.Message
}

// ErrCRM carries a structured error returned by the CRM REST API.
type ErrCRM struct {
	Status  int
	Code    string
	Message string
}

func (e *ErrCRM) Error() string {
	return fmt.Sprintf("crm error %d [%s]: %s", e.Status, e.Code, e.Message)
}

// ErrConfiguration marks fatal credential or account problems reported by a
// collaborator (401/403). These are never retried.
type ErrConfiguration struct {
	Service string
	Status  int
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("%s rejected credentials (status %d): check credentials / account locked", e.Service, e.Status)
}
