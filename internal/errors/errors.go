// Package errors provides centralized error definitions and error handling utilities
// for collabd. It defines domain-specific sentinels, semantic error types,
// constructors with context wrapping, and the classification helpers the gateway
// uses to turn a failed command into a caller-only system notification.
//
// # Error Types
//
// Domain-specific errors carry the collaboration context they occurred in:
//   - SessionError: errors related to a collaboration session (entity type + id)
//   - IdentityError: a command arrived without an authenticated caller
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input
//
// # Usage
//
//	err := errors.NewSessionError("lock field", errors.ErrSessionNotFound).
//		WithEntity("employee", "42")
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	switch errors.KindOf(err) {
//	case errors.KindValidation:
//	    // warn the caller
//	case errors.KindInternal:
//	    // log and send a generic error
//	}
//
// # Error Classification
//
// Errors are classified by [Kind] (what the gateway reports), by [Severity]
// (how loudly it is logged) and by whether their message is safe to show users.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind is the coarse error category reported to callers.
type Kind string

const (
	KindNone            Kind = ""
	KindIdentityMissing Kind = "identity_missing"
	KindLockConflict    Kind = "lock_conflict"
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that no session exists for the entity.
	ErrSessionNotFound = New("session not found")
	// ErrSessionEvicted indicates that a session handle was evicted from the store.
	// Callers holding such a handle must resolve the entity key again.
	ErrSessionEvicted = New("session evicted")
	// ErrNotParticipant indicates that the user has not joined the session.
	ErrNotParticipant = New("user is not a participant")
)

// Identity sentinel errors
var (
	// ErrIdentityMissing indicates that the connection carries no authenticated user.
	ErrIdentityMissing = New("identity missing")
)

// Lock and conflict sentinel errors
var (
	// ErrFieldLocked indicates that a field is locked by another user.
	ErrFieldLocked = New("field is locked by another user")
	// ErrConflictNotFound indicates that a conflict id is unknown.
	ErrConflictNotFound = New("conflict not found")
	// ErrConflictSettled indicates that a conflict was already resolved or ignored.
	ErrConflictSettled = New("conflict already settled")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrInternal indicates an unexpected failure inside a command.
	ErrInternal = New("internal error")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CollabError is the base interface for all collabd errors.
type CollabError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// Kind returns the category reported to callers.
	Kind() Kind

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	kind       Kind
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// Kind returns the error kind.
func (e *baseError) Kind() Kind {
	return e.kind
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents errors related to a collaboration session.
//
// Example:
//
//	err := errors.NewSessionError("lock field", errors.ErrSessionNotFound)
//	err = err.WithEntity("employee", "42").WithField("salary")
//	fmt.Println(err) // "session error [entity=employee/42, field=salary]: lock field: session not found"
type SessionError struct {
	baseError
	EntityType string
	EntityID   string
	Field      string
}

// NewSessionError creates a new SessionError. The kind is derived from the cause.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			kind:       kindFromSentinel(cause),
			userFacing: true,
		},
	}
}

// WithEntity adds the entity key to the error context.
func (e *SessionError) WithEntity(entityType, entityID string) *SessionError {
	e.EntityType = entityType
	e.EntityID = entityID
	return e
}

// WithField adds a field name to the error context.
func (e *SessionError) WithField(field string) *SessionError {
	e.Field = field
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.EntityType != "" || e.EntityID != "" {
		parts = append(parts, fmt.Sprintf("entity=%s/%s", e.EntityType, e.EntityID))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}

	prefix := "session error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("session error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// IdentityError is returned when a command is issued without an authenticated caller.
type IdentityError struct {
	baseError
	Operation string
}

// NewIdentityError creates a new IdentityError for the named operation.
func NewIdentityError(operation string) *IdentityError {
	return &IdentityError{
		baseError: baseError{
			message:    "no authenticated identity on connection",
			cause:      ErrIdentityMissing,
			severity:   SeverityWarning,
			kind:       KindIdentityMissing,
			userFacing: true,
		},
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *IdentityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("identity error [op=%s]: %s", e.Operation, e.message)
	}
	return fmt.Sprintf("identity error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *IdentityError) Is(target error) bool {
	if _, ok := target.(*IdentityError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("conflict", "c0ffee")
//	fmt.Println(err) // "conflict not found: c0ffee"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found", resourceType),
			severity:   SeverityWarning,
			kind:       KindNotFound,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
	}
	return fmt.Sprintf("%s not found", e.ResourceType)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("must not be empty").WithField("entityId")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			kind:       KindValidation,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// RequireNonEmpty returns a ValidationError naming the first empty value.
// Arguments are alternating field name, value pairs.
func RequireNonEmpty(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return NewValidationError("must not be empty").WithField(pairs[i])
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// kindFromSentinel maps well-known sentinels to their kind.
func kindFromSentinel(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case Is(err, ErrIdentityMissing):
		return KindIdentityMissing
	case Is(err, ErrFieldLocked):
		return KindLockConflict
	case Is(err, ErrInvalidInput), Is(err, ErrNotParticipant), Is(err, ErrConflictSettled):
		return KindValidation
	case Is(err, ErrSessionNotFound), Is(err, ErrConflictNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// KindOf returns the category of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var collabErr CollabError
	if As(err, &collabErr) {
		return collabErr.Kind()
	}
	return kindFromSentinel(err)
}

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    notify(err.Error())
//	} else {
//	    notify("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var collabErr CollabError
	if As(err, &collabErr) {
		return collabErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CollabError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var collabErr CollabError
	if As(err, &collabErr) {
		return collabErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
