// Package typing tracks which participants are typing in which fields.
//
// There is no server-side timeout: clients pair every start with a stop,
// and leave/disconnect handling clears whatever is left.
package typing

import (
	"fmt"
	"sort"
	"time"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/session"
)

// Tracker records typing indicators on session participants.
type Tracker struct {
	store  *session.Store
	bus    *event.Bus
	logger *logging.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a Tracker.
func NewTracker(store *session.Store, bus *event.Bus, opts ...Option) *Tracker {
	t := &Tracker{store: store, bus: bus, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func notParticipant(key session.Key, op, userID string) error {
	return errors.NewSessionError(fmt.Sprintf("%s: user %s", op, userID), errors.ErrNotParticipant).
		WithEntity(key.EntityType, key.EntityID)
}

// StartTyping marks userID as typing in fieldName. Repeated calls refresh
// the timestamp; only the first publishes UserTyping.
func (t *Tracker) StartTyping(key session.Key, fieldName, userID string) error {
	if err := errors.RequireNonEmpty("fieldName", fieldName, "userId", userID); err != nil {
		return err
	}
	sess, err := t.store.Require(key, "start typing")
	if err != nil {
		return err
	}

	var (
		first bool
		p     session.Participant
	)
	err = sess.Update(func(st *session.State) error {
		live, ok := st.Participant(userID)
		if !ok {
			return notParticipant(key, "start typing", userID)
		}
		now := t.store.Now()
		if live.TypingFields == nil {
			live.TypingFields = make(map[string]time.Time)
		}
		_, already := live.TypingFields[fieldName]
		live.TypingFields[fieldName] = now
		live.LastActivity = now
		st.Touch(now)
		first = !already
		p = *live
		return nil
	})
	if err != nil {
		return err
	}

	if first {
		t.logger.WithEntity(key.EntityType, key.EntityID).WithUser(userID).Debug("typing started", "field", fieldName)
		t.bus.Publish(event.NewUserTypingEvent(key.EntityType, key.EntityID, fieldName, userID, p.UserName, p.ConnectionID))
	}
	return nil
}

// StopTyping clears userID's typing entry for fieldName. Returns whether an
// entry was removed; UserStoppedTyping is only published in that case.
func (t *Tracker) StopTyping(key session.Key, fieldName, userID string) (bool, error) {
	if err := errors.RequireNonEmpty("fieldName", fieldName, "userId", userID); err != nil {
		return false, err
	}
	sess, err := t.store.Require(key, "stop typing")
	if err != nil {
		return false, err
	}

	var (
		removed bool
		connID  string
	)
	err = sess.Update(func(st *session.State) error {
		live, ok := st.Participant(userID)
		if !ok {
			return nil
		}
		if _, ok := live.TypingFields[fieldName]; ok {
			delete(live.TypingFields, fieldName)
			removed = true
		}
		connID = live.ConnectionID
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		t.bus.Publish(event.NewUserStoppedTypingEvent(key.EntityType, key.EntityID, fieldName, userID, connID))
	}
	return removed, nil
}

// Clear empties p's typing entries and returns the field names sorted. It
// is meant to run inside a session.Update callback.
func Clear(p *session.Participant) []string {
	fields := make([]string, 0, len(p.TypingFields))
	for f := range p.TypingFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	p.TypingFields = nil
	return fields
}

// Typing returns field name -> sorted user ids currently typing.
func (t *Tracker) Typing(key session.Key) map[string][]string {
	sess, ok := t.store.Get(key)
	if !ok {
		return nil
	}
	out := make(map[string][]string)
	sess.View(func(st *session.State) {
		for _, p := range st.Participants() {
			for f := range p.TypingFields {
				out[f] = append(out[f], p.UserID)
			}
		}
	})
	for f := range out {
		sort.Strings(out[f])
	}
	return out
}
