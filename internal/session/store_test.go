package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/collabd/internal/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var employee42 = Key{EntityType: "employee", EntityID: "42"}

func addParticipant(t *testing.T, sess *Session, userID string) {
	t.Helper()
	err := sess.Update(func(st *State) error {
		st.UpsertParticipant(Participant{UserID: userID, UserName: userID, Status: PresenceOnline})
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func removeParticipant(t *testing.T, sess *Session, userID string) {
	t.Helper()
	err := sess.Update(func(st *State) error {
		st.RemoveParticipant(userID)
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStore()

	s1, created := store.GetOrCreate(employee42)
	if !created {
		t.Error("first GetOrCreate should create")
	}
	s2, created := store.GetOrCreate(employee42)
	if created {
		t.Error("second GetOrCreate should not create")
	}
	if s1 != s2 {
		t.Error("GetOrCreate should return the same session")
	}
	if got, ok := store.Get(employee42); !ok || got != s1 {
		t.Error("Get should return the created session")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestSession_StatusFollowsParticipants(t *testing.T) {
	store := NewStore()
	sess, _ := store.GetOrCreate(employee42)

	status := func() Status {
		var s Status
		sess.View(func(st *State) { s = st.Status })
		return s
	}

	if status() != StatusInactive {
		t.Errorf("new session status = %q, want inactive", status())
	}
	addParticipant(t, sess, "alice")
	if status() != StatusActive {
		t.Errorf("status with participant = %q, want active", status())
	}
	removeParticipant(t, sess, "alice")
	if status() != StatusInactive {
		t.Errorf("status after leave = %q, want inactive", status())
	}
}

func TestState_ParticipantOrder(t *testing.T) {
	sess := newSession(employee42, time.Now, 0)

	addParticipant(t, sess, "alice")
	addParticipant(t, sess, "bob")
	addParticipant(t, sess, "carol")
	// Re-joining keeps the original position.
	addParticipant(t, sess, "alice")
	removeParticipant(t, sess, "bob")

	var ids []string
	sess.View(func(st *State) {
		for _, p := range st.Participants() {
			ids = append(ids, p.UserID)
		}
	})
	want := []string{"alice", "carol"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestStore_EvictRequiresEmptyAndIdle(t *testing.T) {
	clock := newTestClock()
	store := NewStore(WithClock(clock.Now), WithIdleTimeout(time.Minute))
	sess, _ := store.GetOrCreate(employee42)
	addParticipant(t, sess, "alice")

	clock.Advance(time.Hour)
	if store.Evict(employee42, time.Minute) {
		t.Fatal("session with participants must not be evicted")
	}

	err := sess.Update(func(st *State) error {
		st.RemoveParticipant("alice")
		st.Touch(clock.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if store.Evict(employee42, time.Minute) {
		t.Fatal("recently active session must not be evicted")
	}

	clock.Advance(2 * time.Minute)
	if !store.Evict(employee42, time.Minute) {
		t.Fatal("empty idle session should be evicted")
	}
	if _, ok := store.Get(employee42); ok {
		t.Error("evicted session should be gone from the store")
	}
	if !sess.Evicted() {
		t.Error("handle should be flagged evicted")
	}

	err = sess.Update(func(*State) error { return nil })
	if !errors.Is(err, errors.ErrSessionEvicted) {
		t.Errorf("Update on evicted handle = %v, want ErrSessionEvicted", err)
	}

	var status Status
	sess.View(func(st *State) { status = st.Status })
	if status != StatusArchived {
		t.Errorf("evicted status = %q, want archived", status)
	}
}

func TestStore_MarkIdleAndSweep(t *testing.T) {
	clock := newTestClock()
	store := NewStore(WithClock(clock.Now), WithIdleTimeout(10*time.Minute))

	busy, _ := store.GetOrCreate(Key{EntityType: "employee", EntityID: "1"})
	addParticipant(t, busy, "alice")
	if store.MarkIdle(busy.Key()) {
		t.Error("MarkIdle should refuse a session with participants")
	}

	idle, _ := store.GetOrCreate(Key{EntityType: "employee", EntityID: "2"})
	if !store.MarkIdle(idle.Key()) {
		t.Fatal("MarkIdle should stamp an empty session")
	}

	clock.Advance(5 * time.Minute)
	if got := store.SweepIdle(); len(got) != 0 {
		t.Errorf("SweepIdle before timeout evicted %v", got)
	}

	clock.Advance(6 * time.Minute)
	got := store.SweepIdle()
	if len(got) != 1 || got[0] != idle.Key() {
		t.Fatalf("SweepIdle() = %v, want [%v]", got, idle.Key())
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_SweepKeepsRejoinedSession(t *testing.T) {
	clock := newTestClock()
	store := NewStore(WithClock(clock.Now), WithIdleTimeout(time.Minute))

	sess, _ := store.GetOrCreate(employee42)
	store.MarkIdle(employee42)

	// A join that lands after MarkIdle but before the sweep wins.
	addParticipant(t, sess, "alice")
	clock.Advance(2 * time.Minute)

	if got := store.SweepIdle(); len(got) != 0 {
		t.Fatalf("SweepIdle() = %v, want none", got)
	}
	if sess.Evicted() {
		t.Error("session with participants was evicted")
	}
}

// A join racing an eviction must either keep the session alive or land on a
// fresh one; it must never end up on an evicted handle.
func TestStore_EvictionRace(t *testing.T) {
	clock := newTestClock()
	store := NewStore(WithClock(clock.Now), WithIdleTimeout(time.Nanosecond))

	for i := range 200 {
		key := Key{EntityType: "employee", EntityID: fmt.Sprint(i)}
		store.GetOrCreate(key)
		clock.Advance(time.Second)

		var wg sync.WaitGroup
		var joined *Session
		wg.Go(func() {
			for {
				sess, _ := store.GetOrCreate(key)
				err := sess.Update(func(st *State) error {
					st.UpsertParticipant(Participant{UserID: "alice"})
					return nil
				})
				if errors.Is(err, errors.ErrSessionEvicted) {
					continue
				}
				joined = sess
				return
			}
		})
		wg.Go(func() {
			store.Evict(key, time.Nanosecond)
		})
		wg.Wait()

		current, ok := store.Get(key)
		if !ok {
			t.Fatalf("iteration %d: session missing after join", i)
		}
		if current != joined {
			t.Fatalf("iteration %d: participant landed on a phantom session", i)
		}
		var n int
		current.View(func(st *State) { n = st.ParticipantCount() })
		if n != 1 {
			t.Fatalf("iteration %d: participant count = %d, want 1", i, n)
		}
	}
}

func TestSession_Snapshot(t *testing.T) {
	clock := newTestClock()
	store := NewStore(WithClock(clock.Now))
	sess, _ := store.GetOrCreate(employee42)

	err := sess.Update(func(st *State) error {
		now := clock.Now()
		st.UpsertParticipant(Participant{
			UserID:       "alice",
			Status:       PresenceOnline,
			TypingFields: map[string]time.Time{"salary": now},
		})
		st.Locks["salary"] = FieldLock{FieldName: "salary", OwnerID: "alice", LockedAt: now, ExpiresAt: now.Add(time.Minute)}
		st.Locks["title"] = FieldLock{FieldName: "title", OwnerID: "alice", LockedAt: now, ExpiresAt: now.Add(-time.Second)}
		st.Fields["salary"] = FieldSnapshot{Value: 55000, AuthorID: "alice", Version: st.NextVersion()}
		st.AddConflict(&Conflict{ID: "c-1", FieldName: "bonus", Status: ConflictPending})
		st.AddConflict(&Conflict{ID: "c-2", FieldName: "title", Status: ConflictIgnored})
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap := sess.Snapshot()
	if snap.EntityType != "employee" || snap.EntityID != "42" {
		t.Errorf("unexpected entity %s/%s", snap.EntityType, snap.EntityID)
	}
	if len(snap.Locks) != 1 || snap.Locks[0].FieldName != "salary" {
		t.Errorf("Locks = %+v, want only salary", snap.Locks)
	}
	if len(snap.Conflicts) != 1 || snap.Conflicts[0].ID != "c-1" {
		t.Errorf("Conflicts = %+v, want only pending c-1", snap.Conflicts)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}

	// Mutating the snapshot must not leak into the session.
	snap.Participants[0].TypingFields["bonus"] = clock.Now()
	snap.Fields["salary"] = FieldSnapshot{Value: 0}
	sess.View(func(st *State) {
		p, _ := st.Participant("alice")
		if _, ok := p.TypingFields["bonus"]; ok {
			t.Error("snapshot shares TypingFields with session")
		}
		if st.Fields["salary"].Value != 55000 {
			t.Error("snapshot shares Fields with session")
		}
	})
}

func TestState_ChangesSinceAndTrim(t *testing.T) {
	sess := newSession(employee42, time.Now, 3)

	err := sess.Update(func(st *State) error {
		for i := 0; i < 5; i++ {
			st.AppendChange(FieldChange{FieldName: "f", Version: st.NextVersion(), Type: ChangeUpdate})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	sess.View(func(st *State) {
		if len(st.Changes) != 3 {
			t.Fatalf("len(Changes) = %d, want 3 after trim", len(st.Changes))
		}
		got := st.ChangesSince(3)
		if len(got) != 2 || got[0].Version != 4 || got[1].Version != 5 {
			t.Errorf("ChangesSince(3) = %+v", got)
		}
	})
}

func TestParsePresenceStatus(t *testing.T) {
	tests := []struct {
		in   string
		want PresenceStatus
		ok   bool
	}{
		{"online", PresenceOnline, true},
		{"away", PresenceAway, true},
		{"busy", PresenceBusy, true},
		{"offline", PresenceOffline, true},
		{"invisible", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePresenceStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePresenceStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStore_Require(t *testing.T) {
	store := NewStore()

	_, err := store.Require(employee42, "lock field")
	if !errors.Is(err, errors.ErrSessionNotFound) {
		t.Fatalf("Require() = %v, want ErrSessionNotFound", err)
	}
	var se *errors.SessionError
	if !errors.As(err, &se) || se.EntityID != "42" {
		t.Errorf("Require() error should carry entity context, got %v", err)
	}

	created, _ := store.GetOrCreate(employee42)
	got, err := store.Require(employee42, "lock field")
	if err != nil || got != created {
		t.Errorf("Require() = %v, %v; want created session", got, err)
	}
}
