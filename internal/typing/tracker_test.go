package typing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/session"
)

var employee42 = session.Key{EntityType: "employee", EntityID: "42"}

func newTestTracker(t *testing.T, users ...string) (*Tracker, *[]event.Event) {
	t.Helper()
	store := session.NewStore()
	sess, _ := store.GetOrCreate(employee42)
	err := sess.Update(func(st *session.State) error {
		for _, u := range users {
			st.UpsertParticipant(session.Participant{UserID: u, UserName: u + "-name", ConnectionID: "conn-" + u})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed participants: %v", err)
	}

	bus := event.NewBus()
	var (
		mu     sync.Mutex
		events []event.Event
	)
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	return NewTracker(store, bus), &events
}

func TestStartTyping(t *testing.T) {
	tr, events := newTestTracker(t, "alice", "bob")

	if err := tr.StartTyping(employee42, "salary", "alice"); err != nil {
		t.Fatalf("StartTyping() error: %v", err)
	}
	// Refreshing does not notify again.
	if err := tr.StartTyping(employee42, "salary", "alice"); err != nil {
		t.Fatalf("StartTyping() error: %v", err)
	}

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	e, ok := (*events)[0].(event.UserTypingEvent)
	if !ok {
		t.Fatalf("event = %T, want UserTypingEvent", (*events)[0])
	}
	if e.UserName != "alice-name" || e.Route().Except != "conn-alice" {
		t.Errorf("unexpected event %+v route %+v", e, e.Route())
	}

	got := tr.Typing(employee42)
	if fmt.Sprint(got["salary"]) != "[alice]" {
		t.Errorf("Typing() = %v", got)
	}
}

func TestStartTyping_Errors(t *testing.T) {
	tr, _ := newTestTracker(t, "alice")

	err := tr.StartTyping(employee42, "salary", "mallory")
	if !errors.Is(err, errors.ErrNotParticipant) {
		t.Errorf("non-participant: err = %v, want ErrNotParticipant", err)
	}
	err = tr.StartTyping(employee42, "", "alice")
	if errors.KindOf(err) != errors.KindValidation {
		t.Errorf("empty field: kind = %q, want validation", errors.KindOf(err))
	}
	err = tr.StartTyping(session.Key{EntityType: "employee", EntityID: "7"}, "salary", "alice")
	if !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("missing session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestStopTyping(t *testing.T) {
	tr, events := newTestTracker(t, "alice")

	removed, err := tr.StopTyping(employee42, "salary", "alice")
	if err != nil || removed {
		t.Fatalf("StopTyping() without entry = %v, %v; want false, nil", removed, err)
	}
	if len(*events) != 0 {
		t.Errorf("stop without start should not publish, got %d events", len(*events))
	}

	tr.StartTyping(employee42, "salary", "alice") //nolint:errcheck
	removed, err = tr.StopTyping(employee42, "salary", "alice")
	if err != nil || !removed {
		t.Fatalf("StopTyping() = %v, %v; want true, nil", removed, err)
	}

	last := (*events)[len(*events)-1]
	if last.EventType() != event.TypeUserStoppedTyping {
		t.Errorf("last event = %s, want %s", last.EventType(), event.TypeUserStoppedTyping)
	}
	if len(tr.Typing(employee42)) != 0 {
		t.Errorf("Typing() should be empty, got %v", tr.Typing(employee42))
	}
}

func TestClear(t *testing.T) {
	tr, events := newTestTracker(t, "alice", "bob")
	tr.StartTyping(employee42, "title", "alice")  //nolint:errcheck
	tr.StartTyping(employee42, "salary", "alice") //nolint:errcheck
	tr.StartTyping(employee42, "salary", "bob")   //nolint:errcheck
	published := len(*events)

	sess, _ := tr.store.Get(employee42)
	var cleared []string
	err := sess.Update(func(st *session.State) error {
		if p, ok := st.Participant("alice"); ok {
			cleared = Clear(p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if fmt.Sprint(cleared) != "[salary title]" {
		t.Errorf("Clear() = %v, want [salary title]", cleared)
	}
	if len(*events) != published {
		t.Error("Clear should not publish")
	}

	got := tr.Typing(employee42)
	if fmt.Sprint(got["salary"]) != "[bob]" || len(got["title"]) != 0 {
		t.Errorf("Typing() after clear = %v", got)
	}
}
