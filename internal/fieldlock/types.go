package fieldlock

import (
	"time"

	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/session"
)

// DefaultDuration is the lifetime of a lock when none is configured.
const DefaultDuration = 5 * time.Minute

// Unlock failure reasons.
const (
	ReasonNotLocked = "not locked"
)

// LockResult is the outcome of a Lock call. A denied lock is a normal
// result, not an error.
type LockResult struct {
	Granted bool
	// Reason is "locked by <ownerName>" when the lock was denied.
	Reason string
	// Lock is the installed lock when granted, or the blocking lock when denied.
	Lock session.FieldLock
}

// UnlockResult is the outcome of an Unlock call.
type UnlockResult struct {
	Released bool
	Reason   string
}

func lockedBy(l session.FieldLock) string {
	return "locked by " + l.OwnerName
}

// Option configures a Manager.
type Option func(*Manager)

// Guard runs inside the lock critical section before a grant. A non-nil
// error aborts the Lock call.
type Guard func(st *session.State, fieldName, userID string) error

// WithGuard installs a guard consulted on every Lock call.
func WithGuard(g Guard) Option {
	return func(m *Manager) {
		m.guard = g
	}
}

// WithDuration sets the lock lifetime.
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		m.SetDuration(d)
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}
