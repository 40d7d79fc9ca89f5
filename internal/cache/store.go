package cache

import (
	"sync"
	"time"
)

// Store is a concurrency-safe keyed store with optional per-entry TTLs.
type Store[K comparable, V any] interface {
	// Get returns the value for key, including entries whose TTL has elapsed.
	Get(key K) (V, bool)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(key K, value V, ttl time.Duration)

	// GetOrCreate returns the existing value for key or stores the result of
	// create. Either way the entry's TTL is cleared. The bool reports whether
	// the value was created by this call.
	GetOrCreate(key K, create func() V) (V, bool)

	// Expire sets a TTL on an existing entry. Returns false if key is absent.
	Expire(key K, ttl time.Duration) bool

	// Persist clears an entry's TTL. Returns false if key is absent.
	Persist(key K) bool

	// DeleteIf removes key when pred returns true for its current value.
	// pred runs while the store is locked and must not call back into it.
	DeleteIf(key K, pred func(V) bool) bool

	// Range calls fn for each entry of a point-in-time copy until fn
	// returns false.
	Range(fn func(K, V) bool)

	// Expired returns the keys whose TTL has elapsed at now.
	Expired(now time.Time) []K

	// Len returns the number of entries.
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

// Option configures a Memory store.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock sets the time source used to compute expiry deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Memory is the in-process Store implementation.
type Memory[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	now   func() time.Time
}

var _ Store[string, int] = (*Memory[string, int])(nil)

// NewMemory creates an empty in-memory store.
func NewMemory[K comparable, V any](opts ...Option) *Memory[K, V] {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return &Memory[K, V]{
		items: make(map[K]entry[V]),
		now:   s.now,
	}
}

func (m *Memory[K, V]) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	return e.value, ok
}

func (m *Memory[K, V]) Set(key K, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry[V]{value: value, expiresAt: m.deadline(ttl)}
}

func (m *Memory[K, V]) GetOrCreate(key K, create func() V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[key]; ok {
		e.expiresAt = time.Time{}
		m.items[key] = e
		return e.value, false
	}
	v := create()
	m.items[key] = entry[V]{value: v}
	return v, true
}

func (m *Memory[K, V]) Expire(key K, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return false
	}
	e.expiresAt = m.deadline(ttl)
	m.items[key] = e
	return true
}

func (m *Memory[K, V]) Persist(key K) bool {
	return m.Expire(key, 0)
}

func (m *Memory[K, V]) DeleteIf(key K, pred func(V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok || !pred(e.value) {
		return false
	}
	delete(m.items, key)
	return true
}

func (m *Memory[K, V]) Range(fn func(K, V) bool) {
	m.mu.RLock()
	keys := make([]K, 0, len(m.items))
	values := make([]V, 0, len(m.items))
	for k, e := range m.items {
		keys = append(keys, k)
		values = append(values, e.value)
	}
	m.mu.RUnlock()

	for i := range keys {
		if !fn(keys[i], values[i]) {
			return
		}
	}
}

func (m *Memory[K, V]) Expired(now time.Time) []K {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []K
	for k, e := range m.items {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
