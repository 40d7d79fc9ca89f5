// Package internal contains integration tests that verify the collaboration
// packages work together: configuration feeding the hub, the hub publishing
// through the event bus, and the sweeper cleaning up after idle sessions.
package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/collabd/internal/config"
	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/session"
	"github.com/Iron-Ham/collabd/internal/testutil"
)

var (
	employee42 = session.Key{EntityType: "employee", EntityID: "42"}
	alice      = coordination.Caller{UserID: "user-a", UserName: "Alice", ConnectionID: "conn-a"}
	bob        = coordination.Caller{UserID: "user-b", UserName: "Bob", ConnectionID: "conn-b"}
)

func newHub(t *testing.T, cfg *config.Config, clock *testutil.Clock) (*coordination.Hub, *testutil.Recorder) {
	t.Helper()
	bus := event.NewBus()
	rec := testutil.NewRecorder(t, bus)
	hub, err := coordination.NewHub(coordination.Config{Bus: bus},
		coordination.WithLockDuration(cfg.Lock.Duration()),
		coordination.WithIdleTimeout(cfg.Session.IdleTimeout()),
		coordination.WithSweepInterval(cfg.Session.SweepInterval()),
		coordination.WithHistoryLimit(cfg.Session.HistoryLimit),
		coordination.WithLockEnforcement(cfg.Lock.Enforce),
		coordination.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	return hub, rec
}

// TestEventBusRouting verifies that group subscribers see every session
// notification except their own, in publish order.
func TestEventBusRouting(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hub, rec := newHub(t, config.Default(), clock)

	if _, err := hub.JoinSession(alice, employee42); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if _, err := hub.JoinSession(bob, employee42); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if _, err := hub.LockField(alice, employee42, "salary"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := hub.BroadcastChange(alice, employee42, coordination.Change{FieldName: "salary", OldValue: 100, NewValue: 120}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	toBob := rec.DeliveredTo(employee42.Group(), bob.ConnectionID)
	var names []string
	for _, n := range toBob {
		names = append(names, n.Name())
	}
	want := []string{"UserJoined", "FieldLocked", "DataChanged"}
	if len(names) != len(want) {
		t.Fatalf("bob received %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("bob notification %d = %q, want %q", i, names[i], want[i])
		}
	}

	for _, n := range rec.DeliveredTo(employee42.Group(), alice.ConnectionID) {
		if n.Name() == "DataChanged" {
			t.Error("alice should not receive her own DataChanged")
		}
	}
}

// TestConfiguredLockLifecycle drives lock expiry and session eviction from
// configured durations.
func TestConfiguredLockLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Lock.DurationMinutes = 1
	cfg.Session.IdleTimeoutMinutes = 10
	cfg.Lock.Enforce = true

	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hub, rec := newHub(t, cfg, clock)

	if _, err := hub.JoinSession(alice, employee42); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if _, err := hub.JoinSession(bob, employee42); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if res, err := hub.LockField(alice, employee42, "salary"); err != nil || !res.Granted {
		t.Fatalf("lock = %+v, %v", res, err)
	}

	// Enforcement rejects bob while the lock is live.
	if _, err := hub.BroadcastChange(bob, employee42, coordination.Change{FieldName: "salary", NewValue: 1}); err == nil {
		t.Error("bob's change to a locked field should be rejected")
	}

	clock.Advance(2 * time.Minute)
	res := hub.Sweep()
	if res.LocksExpired != 1 {
		t.Errorf("LocksExpired = %d, want 1", res.LocksExpired)
	}
	if len(rec.OfType(event.TypeFieldUnlocked)) != 1 {
		t.Errorf("expected one FieldUnlocked event")
	}
	if _, err := hub.BroadcastChange(bob, employee42, coordination.Change{FieldName: "salary", NewValue: 1}); err != nil {
		t.Errorf("bob's change after expiry: %v", err)
	}

	hub.Disconnect(alice)
	hub.Disconnect(bob)
	clock.Advance(11 * time.Minute)
	res = hub.Sweep()
	if len(res.SessionsEvicted) != 1 || res.SessionsEvicted[0] != employee42 {
		t.Errorf("SessionsEvicted = %v, want [%v]", res.SessionsEvicted, employee42)
	}
	if len(hub.Sessions()) != 0 {
		t.Errorf("Sessions() = %v, want none", hub.Sessions())
	}
}

// TestConcurrentSessions runs independent sessions in parallel and checks
// that each keeps its own version sequence.
func TestConcurrentSessions(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hub, _ := newHub(t, config.Default(), clock)

	const sessions = 8
	const changes = 25

	var wg sync.WaitGroup
	for i := range sessions {
		key := session.Key{EntityType: "invoice", EntityID: string(rune('a' + i))}
		caller := coordination.Caller{UserID: "user-" + key.EntityID, ConnectionID: "conn-" + key.EntityID}
		wg.Go(func() {
			if _, err := hub.JoinSession(caller, key); err != nil {
				t.Errorf("join %v: %v", key, err)
				return
			}
			for n := range changes {
				if _, err := hub.BroadcastChange(caller, key, coordination.Change{FieldName: "total", NewValue: n}); err != nil {
					t.Errorf("broadcast %v: %v", key, err)
					return
				}
			}
		})
	}
	wg.Wait()

	sums := hub.Sessions()
	if len(sums) != sessions {
		t.Fatalf("Sessions() = %d, want %d", len(sums), sessions)
	}
	for _, s := range sums {
		if s.Version != changes {
			t.Errorf("%s/%s version = %d, want %d", s.EntityType, s.EntityID, s.Version, changes)
		}
	}
}
