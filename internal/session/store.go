package session

import (
	"sort"
	"time"

	"github.com/Iron-Ham/collabd/internal/cache"
	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/logging"
)

// DefaultIdleTimeout is how long an empty session is kept before eviction.
const DefaultIdleTimeout = 30 * time.Minute

// DefaultHistoryLimit caps the change log of a single session.
const DefaultHistoryLimit = 1000

// Store owns every live session.
type Store struct {
	items        cache.Store[Key, *Session]
	now          func() time.Time
	idleTimeout  time.Duration
	historyLimit int
	logger       *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for session timestamps and idle checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIdleTimeout sets how long an empty session survives.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithHistoryLimit caps each session's change log. Zero disables the cap.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		s.historyLimit = n
	}
}

// WithBackend replaces the in-memory cache.
func WithBackend(backend cache.Store[Key, *Session]) Option {
	return func(s *Store) {
		if backend != nil {
			s.items = backend
		}
	}
}

// WithLogger sets the logger used for eviction messages.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:          time.Now,
		idleTimeout:  DefaultIdleTimeout,
		historyLimit: DefaultHistoryLimit,
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.items == nil {
		s.items = cache.NewMemory[Key, *Session](cache.WithClock(s.now))
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// IdleTimeout returns the configured idle timeout.
func (s *Store) IdleTimeout() time.Duration { return s.idleTimeout }

// GetOrCreate returns the session for key, creating it on first use.
// Any pending idle TTL on the entry is cleared.
func (s *Store) GetOrCreate(key Key) (*Session, bool) {
	sess, created := s.items.GetOrCreate(key, func() *Session {
		return newSession(key, s.now, s.historyLimit)
	})
	if created {
		s.logger.WithEntity(key.EntityType, key.EntityID).Debug("session created")
	}
	return sess, created
}

// Get returns the session for key.
func (s *Store) Get(key Key) (*Session, bool) {
	return s.items.Get(key)
}

// Require returns the session for key or a SessionError wrapping
// ErrSessionNotFound. op names the calling operation.
func (s *Store) Require(key Key, op string) (*Session, error) {
	sess, ok := s.items.Get(key)
	if !ok {
		return nil, errors.NewSessionError(op, errors.ErrSessionNotFound).
			WithEntity(key.EntityType, key.EntityID)
	}
	return sess, nil
}

// Sessions returns every live session ordered by key.
func (s *Store) Sessions() []*Session {
	var out []*Session
	s.items.Range(func(_ Key, sess *Session) bool {
		out = append(out, sess)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key, out[j].key
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		return a.EntityID < b.EntityID
	})
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int { return s.items.Len() }

// Evict removes the session for key if it has no participants and has been
// idle for at least idleFor. The check runs under the session lock inside
// the store's conditional delete, so a concurrent join either completes
// first and blocks the eviction, or observes the evicted flag and retries.
func (s *Store) Evict(key Key, idleFor time.Duration) bool {
	now := s.now()
	evicted := s.items.DeleteIf(key, func(sess *Session) bool {
		return sess.evictIfIdle(now, idleFor)
	})
	if evicted {
		s.logger.WithEntity(key.EntityType, key.EntityID).Info("session evicted", "idle_for", idleFor.String())
	}
	return evicted
}

// MarkIdle stamps an empty session with the idle TTL. It is a no-op while
// the session has participants.
func (s *Store) MarkIdle(key Key) bool {
	sess, ok := s.items.Get(key)
	if !ok {
		return false
	}
	empty := false
	sess.View(func(st *State) { empty = st.ParticipantCount() == 0 })
	if !empty {
		return false
	}
	return s.items.Expire(key, s.idleTimeout)
}

// SweepIdle evicts every session whose idle TTL has elapsed and returns
// their keys. Sessions that gained participants since being marked keep
// their entry and lose the TTL.
func (s *Store) SweepIdle() []Key {
	var evicted []Key
	for _, key := range s.items.Expired(s.now()) {
		if s.Evict(key, s.idleTimeout) {
			evicted = append(evicted, key)
			continue
		}
		if sess, ok := s.items.Get(key); ok {
			busy := false
			sess.View(func(st *State) { busy = st.ParticipantCount() > 0 })
			if busy {
				s.items.Persist(key)
			}
		}
	}
	return evicted
}
