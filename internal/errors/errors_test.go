package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// SessionError Tests
// -----------------------------------------------------------------------------

func TestNewSessionError(t *testing.T) {
	err := NewSessionError("lock field", ErrSessionNotFound)

	if err.message != "lock field" {
		t.Errorf("message = %q, want %q", err.message, "lock field")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityWarning)
	}
	if err.Kind() != KindNotFound {
		t.Errorf("Kind() = %q, want %q", err.Kind(), KindNotFound)
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestSessionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SessionError
		want string
	}{
		{
			name: "no context",
			err:  NewSessionError("join", nil),
			want: "session error: join",
		},
		{
			name: "entity and field",
			err:  NewSessionError("lock field", ErrSessionNotFound).WithEntity("employee", "42").WithField("salary"),
			want: "session error [entity=employee/42, field=salary]: lock field: session not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError_Is(t *testing.T) {
	err := NewSessionError("submit", ErrFieldLocked)
	wrapped := fmt.Errorf("command failed: %w", err)

	if !Is(wrapped, ErrFieldLocked) {
		t.Error("wrapped SessionError should match its cause sentinel")
	}
	if !Is(wrapped, &SessionError{}) {
		t.Error("wrapped SessionError should match *SessionError target")
	}
	if Is(wrapped, ErrSessionNotFound) {
		t.Error("should not match an unrelated sentinel")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError("must not be empty").WithField("entityId")

	if got, want := err.Error(), "validation error [field=entityId]: must not be empty"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindValidation)
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("conflict", "abc").WithCause(ErrConflictNotFound)

	if got, want := err.Error(), "conflict not found: abc"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrConflictNotFound) {
		t.Error("NotFoundError should match its cause")
	}
}

func TestIdentityError(t *testing.T) {
	err := NewIdentityError("JoinSession")

	if !Is(err, ErrIdentityMissing) {
		t.Error("IdentityError should match ErrIdentityMissing")
	}
	if KindOf(err) != KindIdentityMissing {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindIdentityMissing)
	}
}

func TestRequireNonEmpty(t *testing.T) {
	if err := RequireNonEmpty("entityType", "employee", "entityId", "42"); err != nil {
		t.Errorf("RequireNonEmpty() = %v, want nil", err)
	}

	err := RequireNonEmpty("entityType", "employee", "entityId", "  ")
	var ve *ValidationError
	if !As(err, &ve) {
		t.Fatalf("RequireNonEmpty() = %v, want *ValidationError", err)
	}
	if ve.Field != "entityId" {
		t.Errorf("Field = %q, want %q", ve.Field, "entityId")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain error", errors.New("boom"), KindInternal},
		{"identity sentinel", ErrIdentityMissing, KindIdentityMissing},
		{"field locked", Wrap(ErrFieldLocked, "submit"), KindLockConflict},
		{"not participant", ErrNotParticipant, KindValidation},
		{"session not found", ErrSessionNotFound, KindNotFound},
		{"settled conflict", NewSessionError("resolve", ErrConflictSettled), KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if IsUserFacing(errors.New("raw")) {
		t.Error("plain errors should not be user facing")
	}
	if !IsUserFacing(Wrap(NewValidationError("bad"), "ctx")) {
		t.Error("wrapped ValidationError should be user facing")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", got, SeverityDebug)
	}
	if got := GetSeverity(errors.New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want %v", got, SeverityError)
	}
	err := NewSessionError("x", nil).WithSeverity(SeverityCritical)
	if got := GetSeverity(err); got != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want %v", got, SeverityCritical)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrSessionNotFound, "join %s/%s", "employee", "42")
	if got, want := err.Error(), "join employee/42: session not found"; got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
}
