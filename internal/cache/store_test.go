package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory[string, int]()

	if _, ok := m.Get("a"); ok {
		t.Error("Get on empty store should report false")
	}

	m.Set("a", 1, 0)
	got, ok := m.Get("a")
	if !ok || got != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMemory_GetOrCreate(t *testing.T) {
	clock := newClock()
	m := NewMemory[string, int](WithClock(clock.Now))

	calls := 0
	create := func() int {
		calls++
		return 7
	}

	v, created := m.GetOrCreate("k", create)
	if !created || v != 7 {
		t.Fatalf("first GetOrCreate = %d, %v; want 7, true", v, created)
	}

	m.Expire("k", time.Minute)
	v, created = m.GetOrCreate("k", create)
	if created || v != 7 {
		t.Errorf("second GetOrCreate = %d, %v; want 7, false", v, created)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	clock.Advance(2 * time.Minute)
	if keys := m.Expired(clock.Now()); len(keys) != 0 {
		t.Errorf("GetOrCreate should clear TTL, got expired keys %v", keys)
	}
}

func TestMemory_ExpiryIsAdvisory(t *testing.T) {
	clock := newClock()
	m := NewMemory[string, string](WithClock(clock.Now))

	m.Set("short", "x", time.Second)
	m.Set("long", "y", time.Hour)
	m.Set("forever", "z", 0)

	clock.Advance(time.Minute)

	expired := m.Expired(clock.Now())
	if len(expired) != 1 || expired[0] != "short" {
		t.Fatalf("Expired() = %v, want [short]", expired)
	}
	if _, ok := m.Get("short"); !ok {
		t.Error("expired entry should stay readable until deleted")
	}
}

func TestMemory_ExpireAndPersist(t *testing.T) {
	clock := newClock()
	m := NewMemory[string, int](WithClock(clock.Now))

	if m.Expire("missing", time.Second) {
		t.Error("Expire on missing key should return false")
	}
	if m.Persist("missing") {
		t.Error("Persist on missing key should return false")
	}

	m.Set("k", 1, 0)
	if !m.Expire("k", time.Second) {
		t.Fatal("Expire should return true for existing key")
	}
	if !m.Persist("k") {
		t.Fatal("Persist should return true for existing key")
	}

	clock.Advance(time.Hour)
	if keys := m.Expired(clock.Now()); len(keys) != 0 {
		t.Errorf("persisted key should not expire, got %v", keys)
	}
}

func TestMemory_DeleteIf(t *testing.T) {
	m := NewMemory[string, int]()
	m.Set("k", 5, 0)

	if m.DeleteIf("k", func(v int) bool { return v > 10 }) {
		t.Error("DeleteIf should not delete when predicate is false")
	}
	if !m.DeleteIf("k", func(v int) bool { return v == 5 }) {
		t.Error("DeleteIf should delete when predicate is true")
	}
	if _, ok := m.Get("k"); ok {
		t.Error("key should be gone after DeleteIf")
	}
	if m.DeleteIf("k", func(int) bool { return true }) {
		t.Error("DeleteIf on missing key should return false")
	}
}

func TestMemory_Range(t *testing.T) {
	m := NewMemory[string, int]()
	m.Set("a", 1, 0)
	m.Set("b", 2, 0)
	m.Set("c", 3, 0)

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	if sum != 6 {
		t.Errorf("sum = %d, want 6", sum)
	}

	visited := 0
	m.Range(func(string, int) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("Range should stop after fn returns false, visited %d", visited)
	}

	// Range iterates a copy, so mutation from fn must not deadlock.
	m.Range(func(k string, _ int) bool {
		m.Set(k+"-copy", 0, 0)
		return true
	})
	if m.Len() != 6 {
		t.Errorf("Len() = %d, want 6", m.Len())
	}
}

func TestMemory_ConcurrentGetOrCreate(t *testing.T) {
	m := NewMemory[string, *int]()

	var wg sync.WaitGroup
	results := make([]*int, 50)
	for i := range 50 {
		wg.Go(func() {
			v, _ := m.GetOrCreate("shared", func() *int { return new(int) })
			results[i] = v
		})
	}
	wg.Wait()

	for i, r := range results {
		if r != results[0] {
			t.Fatalf("goroutine %d got a different value", i)
		}
	}
}
