package presence

import (
	"fmt"
	"runtime/debug"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/fieldlock"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/session"
	"github.com/Iron-Ham/collabd/internal/typing"
)

// maxJoinAttempts bounds how often Join re-resolves a session that was
// evicted between lookup and update.
const maxJoinAttempts = 3

// JoinRequest carries the identity of a joining user.
type JoinRequest struct {
	Key          session.Key
	UserID       string
	UserName     string
	Email        string
	Avatar       string
	ConnectionID string
}

// DisconnectReport summarizes the cleanup done for a lost connection.
type DisconnectReport struct {
	Sessions      []session.Key
	LocksReleased int
	TypingCleared int
	Failures      int
}

// departure is what a removal must announce after the session lock is released.
type departure struct {
	participant session.Participant
	locks       []string
	typing      []string
	empty       bool
}

// Registry manages participants across all sessions of a Store.
type Registry struct {
	store  *session.Store
	bus    *event.Bus
	logger *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a Registry.
func NewRegistry(store *session.Store, bus *event.Bus, opts ...Option) *Registry {
	r := &Registry{store: store, bus: bus, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join adds or refreshes the caller in the session, creating the session on
// first use, and returns a copy of the stored participant.
func (r *Registry) Join(req JoinRequest) (session.Participant, error) {
	err := errors.RequireNonEmpty(
		"entityType", req.Key.EntityType,
		"entityId", req.Key.EntityID,
		"userId", req.UserID,
		"connectionId", req.ConnectionID,
	)
	if err != nil {
		return session.Participant{}, err
	}

	for range maxJoinAttempts {
		sess, _ := r.store.GetOrCreate(req.Key)

		var joined session.Participant
		err := sess.Update(func(st *session.State) error {
			now := r.store.Now()
			p := session.Participant{
				UserID:       req.UserID,
				UserName:     req.UserName,
				Email:        req.Email,
				Avatar:       req.Avatar,
				ConnectionID: req.ConnectionID,
				JoinedAt:     now,
				LastActivity: now,
				Status:       session.PresenceOnline,
			}
			if existing, ok := st.Participant(req.UserID); ok {
				p.JoinedAt = existing.JoinedAt
			}
			joined = st.UpsertParticipant(p).Clone()
			st.Touch(now)
			return nil
		})
		if errors.Is(err, errors.ErrSessionEvicted) {
			continue
		}
		if err != nil {
			return session.Participant{}, err
		}

		r.logger.WithEntity(req.Key.EntityType, req.Key.EntityID).
			WithUser(req.UserID).
			WithConnection(req.ConnectionID).
			Info("user joined")
		r.bus.Publish(event.NewUserJoinedEvent(req.Key.EntityType, req.Key.EntityID, joined.Info(), req.ConnectionID))
		return joined, nil
	}

	return session.Participant{}, errors.NewSessionError("join", errors.ErrInternal).
		WithEntity(req.Key.EntityType, req.Key.EntityID).
		WithSeverity(errors.SeverityError)
}

// Leave removes userID from the session if connectionID is the stored
// connection. Leaving a session one is not in is not an error.
func (r *Registry) Leave(key session.Key, userID, connectionID string) (bool, error) {
	if err := errors.RequireNonEmpty("userId", userID, "connectionId", connectionID); err != nil {
		return false, err
	}
	sess, ok := r.store.Get(key)
	if !ok {
		return false, nil
	}

	d, removed, err := r.remove(sess, userID, connectionID)
	if errors.Is(err, errors.ErrSessionEvicted) {
		return false, nil
	}
	if err != nil || !removed {
		return false, err
	}
	r.announce(key, d, event.UnlockLeft)
	return true, nil
}

// remove takes the participant out of the session together with its locks
// and typing entries.
func (r *Registry) remove(sess *session.Session, userID, connectionID string) (departure, bool, error) {
	var (
		d       departure
		removed bool
	)
	err := sess.Update(func(st *session.State) error {
		p, ok := st.Participant(userID)
		if !ok || p.ConnectionID != connectionID {
			return nil
		}
		now := r.store.Now()
		d.typing = typing.Clear(p)
		d.locks = fieldlock.ReleaseOwned(st, userID, now)
		d.participant, _ = st.RemoveParticipant(userID)
		d.empty = st.ParticipantCount() == 0
		st.Touch(now)
		removed = true
		return nil
	})
	return d, removed, err
}

func (r *Registry) announce(key session.Key, d departure, unlockReason string) {
	p := d.participant
	r.logger.WithEntity(key.EntityType, key.EntityID).
		WithUser(p.UserID).
		WithConnection(p.ConnectionID).
		Info("user left", "reason", unlockReason, "locks_released", len(d.locks), "typing_cleared", len(d.typing))

	for _, field := range d.locks {
		r.bus.Publish(event.NewFieldUnlockedEvent(key.EntityType, key.EntityID, field, p.UserID, unlockReason))
	}
	for _, field := range d.typing {
		r.bus.Publish(event.NewUserStoppedTypingEvent(key.EntityType, key.EntityID, field, p.UserID, ""))
	}
	r.bus.Publish(event.NewUserLeftEvent(key.EntityType, key.EntityID, p.UserID, p.UserName))

	if d.empty {
		r.store.MarkIdle(key)
	}
}

// Disconnect removes the user from every session joined through
// connectionID. It never fails: each session is cleaned up independently
// and failures are logged and counted.
func (r *Registry) Disconnect(userID, connectionID string) DisconnectReport {
	var report DisconnectReport
	for _, sess := range r.store.Sessions() {
		d, removed, ok := r.disconnectOne(sess, userID, connectionID)
		if !ok {
			report.Failures++
			continue
		}
		if !removed {
			continue
		}
		report.Sessions = append(report.Sessions, sess.Key())
		report.LocksReleased += len(d.locks)
		report.TypingCleared += len(d.typing)
	}

	if len(report.Sessions) > 0 || report.Failures > 0 {
		r.logger.WithUser(userID).WithConnection(connectionID).Info("connection cleaned up",
			"sessions", len(report.Sessions),
			"locks_released", report.LocksReleased,
			"typing_cleared", report.TypingCleared,
			"failures", report.Failures,
		)
	}
	return report
}

func (r *Registry) disconnectOne(sess *session.Session, userID, connectionID string) (d departure, removed, ok bool) {
	key := sess.Key()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithEntity(key.EntityType, key.EntityID).WithUser(userID).Error("disconnect cleanup panicked",
				"connection_id", connectionID,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()

	d, removed, err := r.remove(sess, userID, connectionID)
	if errors.Is(err, errors.ErrSessionEvicted) {
		return departure{}, false, true
	}
	if err != nil {
		r.logger.WithEntity(key.EntityType, key.EntityID).WithUser(userID).Warn("disconnect cleanup failed",
			"connection_id", connectionID, "error", err.Error())
		return departure{}, false, false
	}
	if removed {
		r.announce(key, d, event.UnlockDisconnected)
	}
	return d, removed, true
}

// ListOnline returns copies of the session's participants in join order.
func (r *Registry) ListOnline(key session.Key) []session.Participant {
	sess, ok := r.store.Get(key)
	if !ok {
		return nil
	}
	var out []session.Participant
	sess.View(func(st *session.State) {
		out = st.Participants()
	})
	return out
}

// IsParticipant reports whether userID is in the session.
func (r *Registry) IsParticipant(key session.Key, userID string) bool {
	sess, ok := r.store.Get(key)
	if !ok {
		return false
	}
	var in bool
	sess.View(func(st *session.State) {
		_, in = st.Participant(userID)
	})
	return in
}

// SetStatus changes userID's presence status and publishes PresenceChanged
// when it differs from the stored one.
func (r *Registry) SetStatus(key session.Key, userID string, status session.PresenceStatus) error {
	if _, ok := session.ParsePresenceStatus(string(status)); !ok {
		return errors.NewValidationError("unknown presence status").WithField("status").WithValue(status)
	}
	sess, err := r.store.Require(key, "update presence")
	if err != nil {
		return err
	}

	changed := false
	err = sess.Update(func(st *session.State) error {
		p, ok := st.Participant(userID)
		if !ok {
			return errors.NewSessionError("update presence", errors.ErrNotParticipant).
				WithEntity(key.EntityType, key.EntityID)
		}
		now := r.store.Now()
		changed = p.Status != status
		p.Status = status
		p.LastActivity = now
		st.Touch(now)
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		r.bus.Publish(event.NewPresenceChangedEvent(key.EntityType, key.EntityID, userID, string(status)))
	}
	return nil
}

// Touch refreshes userID's last activity. Returns false if the user is not
// in the session.
func (r *Registry) Touch(key session.Key, userID string) bool {
	sess, ok := r.store.Get(key)
	if !ok {
		return false
	}
	touched := false
	err := sess.Update(func(st *session.State) error {
		p, ok := st.Participant(userID)
		if !ok {
			return nil
		}
		now := r.store.Now()
		p.LastActivity = now
		st.Touch(now)
		touched = true
		return nil
	})
	return err == nil && touched
}
