package session

import (
	"maps"
	"sync"
	"time"

	"github.com/Iron-Ham/collabd/internal/errors"
)

// Session is the shared editing state for one entity.
type Session struct {
	key   Key
	now   func() time.Time
	limit int

	mu      sync.Mutex
	state   State
	evicted bool
}

func newSession(key Key, now func() time.Time, historyLimit int) *Session {
	return &Session{
		key:   key,
		now:   now,
		limit: historyLimit,
		state: newState(key, now()),
	}
}

// Key returns the entity key of the session.
func (s *Session) Key() Key { return s.key }

// Update runs fn as a single critical section over the session state.
// It returns ErrSessionEvicted without calling fn when the session has been
// removed from its store. An error from fn is returned unchanged; fn is
// responsible for leaving the state consistent when it fails.
func (s *Session) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evicted {
		return errors.ErrSessionEvicted
	}
	err := fn(&s.state)
	s.state.refreshStatus()
	s.state.trimChanges(s.limit)
	return err
}

// View runs fn with read access to the session state. It is allowed on
// evicted sessions.
func (s *Session) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Evicted reports whether the session has been removed from its store.
func (s *Session) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// evictIfIdle flags the session as evicted when it has no participants and
// has been idle for at least idleFor.
func (s *Session) evictIfIdle(now time.Time, idleFor time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evicted {
		return true
	}
	if s.state.ParticipantCount() > 0 || now.Sub(s.state.LastActivity) < idleFor {
		return false
	}
	s.evicted = true
	s.state.Status = StatusArchived
	return true
}

// RecentChanges is how many change log entries a Snapshot carries.
const RecentChanges = 50

// Snapshot is a deep, JSON-ready copy of a session.
type Snapshot struct {
	EntityType   string                   `json:"entityType"`
	EntityID     string                   `json:"entityId"`
	Status       Status                   `json:"status"`
	CreatedAt    time.Time                `json:"createdAt"`
	LastActivity time.Time                `json:"lastActivity"`
	Version      int64                    `json:"version"`
	Participants []Participant            `json:"participants"`
	Locks        []FieldLock              `json:"locks"`
	Conflicts    []Conflict               `json:"conflicts"`
	Changes      []FieldChange            `json:"changes"`
	Fields       map[string]FieldSnapshot `json:"fields"`
}

// Snapshot copies the session state. Expired locks and settled conflicts are
// omitted and only the most recent changes are included.
func (s *Session) Snapshot() Snapshot {
	now := s.now()
	var snap Snapshot
	s.View(func(st *State) {
		changes := st.Changes
		if len(changes) > RecentChanges {
			changes = changes[len(changes)-RecentChanges:]
		}
		snap = Snapshot{
			EntityType:   s.key.EntityType,
			EntityID:     s.key.EntityID,
			Status:       st.Status,
			CreatedAt:    st.CreatedAt,
			LastActivity: st.LastActivity,
			Version:      st.Version,
			Participants: st.Participants(),
			Locks:        st.ActiveLocks(now),
			Conflicts:    st.Conflicts(true),
			Changes:      append([]FieldChange(nil), changes...),
			Fields:       maps.Clone(st.Fields),
		}
	})
	return snap
}
