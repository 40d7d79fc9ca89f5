// Package testutil provides testing utilities for collabd tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/collabd/internal/event"
)

// Recorder captures every event published on a bus.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder subscribes a Recorder to all events on bus. The subscription
// is removed when the test completes.
func NewRecorder(t *testing.T, bus *event.Bus) *Recorder {
	t.Helper()
	r := &Recorder{}
	id := bus.SubscribeAll(r.record)
	t.Cleanup(func() { bus.Unsubscribe(id) })
	return r
}

func (r *Recorder) record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	events := r.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType()
	}
	return types
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(eventType string) []event.Event {
	var out []event.Event
	for _, e := range r.Events() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// DeliveredTo returns the notifications a connection in group would
// receive: events routed to the group that do not exclude it.
func (r *Recorder) DeliveredTo(group, connectionID string) []event.Notification {
	var out []event.Notification
	for _, e := range r.Events() {
		n, ok := e.(event.Notification)
		if !ok {
			continue
		}
		route := n.Route()
		if route.Group == group && route.Except != connectionID {
			out = append(out, n)
		}
	}
	return out
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// WaitFor polls cond until it returns true or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
