package fieldlock

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/session"
)

// Manager grants and releases field locks on sessions held by a Store.
type Manager struct {
	store    *session.Store
	bus      *event.Bus
	logger   *logging.Logger
	guard    Guard
	duration atomic.Int64 // time.Duration
}

// NewManager creates a Manager over the given store and bus.
func NewManager(store *session.Store, bus *event.Bus, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		bus:    bus,
		logger: logging.NopLogger(),
	}
	m.duration.Store(int64(DefaultDuration))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDuration changes the lifetime of locks granted from now on.
// Non-positive durations are ignored.
func (m *Manager) SetDuration(d time.Duration) {
	if d > 0 {
		m.duration.Store(int64(d))
	}
}

// Duration returns the current lock lifetime.
func (m *Manager) Duration() time.Duration {
	return time.Duration(m.duration.Load())
}

// Lock acquires fieldName for userID. The lock is granted when the field is
// unlocked, its lock has expired, or userID already owns it (a refresh).
func (m *Manager) Lock(key session.Key, fieldName, userID, userName string) (LockResult, error) {
	if err := errors.RequireNonEmpty("fieldName", fieldName, "userId", userID); err != nil {
		return LockResult{}, err
	}
	sess, err := m.store.Require(key, "lock field")
	if err != nil {
		return LockResult{}, err
	}

	var result LockResult
	err = sess.Update(func(st *session.State) error {
		if m.guard != nil {
			if err := m.guard(st, fieldName, userID); err != nil {
				return err
			}
		}
		now := m.store.Now()
		existing, held := st.Locks[fieldName]
		held = held && !existing.Expired(now)
		if held && existing.OwnerID != userID {
			result = LockResult{Reason: lockedBy(existing), Lock: existing}
			return nil
		}

		lock := session.FieldLock{
			FieldName: fieldName,
			OwnerID:   userID,
			OwnerName: userName,
			LockedAt:  now,
			ExpiresAt: now.Add(m.Duration()),
		}
		st.Locks[fieldName] = lock
		// A refresh only extends the expiry.
		if !held {
			st.AppendChange(session.FieldChange{
				ID:         uuid.NewString(),
				FieldName:  fieldName,
				AuthorID:   userID,
				AuthorName: userName,
				Timestamp:  now,
				Version:    st.Version,
				Type:       session.ChangeLock,
			})
		}
		st.Touch(now)
		result = LockResult{Granted: true, Lock: lock}
		return nil
	})
	if err != nil {
		return LockResult{}, fmt.Errorf("lock %s on %s: %w", fieldName, key, err)
	}

	log := m.logger.WithEntity(key.EntityType, key.EntityID).WithUser(userID)
	if !result.Granted {
		log.Debug("field lock denied", "field", fieldName, "owner_id", result.Lock.OwnerID)
		return result, nil
	}
	log.Debug("field locked", "field", fieldName, "expires_at", result.Lock.ExpiresAt)
	m.bus.Publish(event.NewFieldLockedEvent(key.EntityType, key.EntityID, fieldName, userID, userName, result.Lock.ExpiresAt))
	return result, nil
}

// Unlock releases fieldName if userID owns it. Unlocking a field that is
// not locked, or locked by someone else, is reported in the result.
func (m *Manager) Unlock(key session.Key, fieldName, userID string) (UnlockResult, error) {
	if err := errors.RequireNonEmpty("fieldName", fieldName, "userId", userID); err != nil {
		return UnlockResult{}, err
	}
	sess, err := m.store.Require(key, "unlock field")
	if err != nil {
		return UnlockResult{}, err
	}

	var result UnlockResult
	err = sess.Update(func(st *session.State) error {
		now := m.store.Now()
		existing, ok := st.Locks[fieldName]
		if !ok || existing.Expired(now) {
			result = UnlockResult{Reason: ReasonNotLocked}
			return nil
		}
		if existing.OwnerID != userID {
			result = UnlockResult{Reason: lockedBy(existing)}
			return nil
		}
		delete(st.Locks, fieldName)
		st.AppendChange(unlockChange(st, existing, now))
		st.Touch(now)
		result = UnlockResult{Released: true}
		return nil
	})
	if err != nil {
		return UnlockResult{}, fmt.Errorf("unlock %s on %s: %w", fieldName, key, err)
	}

	if result.Released {
		m.bus.Publish(event.NewFieldUnlockedEvent(key.EntityType, key.EntityID, fieldName, userID, event.UnlockReleased))
	}
	return result, nil
}

func unlockChange(st *session.State, l session.FieldLock, now time.Time) session.FieldChange {
	return session.FieldChange{
		ID:         uuid.NewString(),
		FieldName:  l.FieldName,
		AuthorID:   l.OwnerID,
		AuthorName: l.OwnerName,
		Timestamp:  now,
		Version:    st.Version,
		Type:       session.ChangeUnlock,
	}
}

// ReleaseOwned removes userID's locks from st. It is meant to run inside a
// session.Update callback.
func ReleaseOwned(st *session.State, userID string, now time.Time) []string {
	var fields []string
	for name, l := range st.Locks {
		if l.OwnerID == userID {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	for _, name := range fields {
		l := st.Locks[name]
		delete(st.Locks, name)
		st.AppendChange(unlockChange(st, l, now))
	}
	return fields
}

// Locks returns the session's unexpired locks sorted by field name.
func (m *Manager) Locks(key session.Key) []session.FieldLock {
	sess, ok := m.store.Get(key)
	if !ok {
		return nil
	}
	var locks []session.FieldLock
	sess.View(func(st *session.State) {
		locks = st.ActiveLocks(m.store.Now())
	})
	return locks
}

// CheckWritable reports ErrFieldLocked when fieldName is held by someone
// other than userID. It is meant to run inside a session.Update callback.
func (m *Manager) CheckWritable(st *session.State, fieldName, userID string) error {
	l, ok := st.Locks[fieldName]
	if !ok || l.Expired(m.store.Now()) || l.OwnerID == userID {
		return nil
	}
	return errors.NewSessionError(lockedBy(l), errors.ErrFieldLocked).
		WithEntity(st.Key.EntityType, st.Key.EntityID).
		WithField(fieldName)
}

type expiredLock struct {
	key  session.Key
	lock session.FieldLock
}

// SweepExpired removes expired locks from every session, publishes a
// FieldUnlocked event with reason "expired" for each, and returns how many
// were removed.
func (m *Manager) SweepExpired() int {
	var expired []expiredLock
	for _, sess := range m.store.Sessions() {
		key := sess.Key()
		err := sess.Update(func(st *session.State) error {
			now := m.store.Now()
			for name, l := range st.Locks {
				if !l.Expired(now) {
					continue
				}
				delete(st.Locks, name)
				st.AppendChange(unlockChange(st, l, now))
				expired = append(expired, expiredLock{key: key, lock: l})
			}
			return nil
		})
		if err != nil && !errors.Is(err, errors.ErrSessionEvicted) {
			m.logger.WithEntity(key.EntityType, key.EntityID).Warn("lock sweep failed", "error", err.Error())
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		if expired[i].key != expired[j].key {
			return expired[i].key.String() < expired[j].key.String()
		}
		return expired[i].lock.FieldName < expired[j].lock.FieldName
	})
	for _, x := range expired {
		m.logger.WithEntity(x.key.EntityType, x.key.EntityID).Info("field lock expired",
			"field", x.lock.FieldName, "owner_id", x.lock.OwnerID)
		m.bus.Publish(event.NewFieldUnlockedEvent(x.key.EntityType, x.key.EntityID,
			x.lock.FieldName, x.lock.OwnerID, event.UnlockExpired))
	}
	return len(expired)
}
