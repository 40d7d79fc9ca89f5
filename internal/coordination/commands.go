package coordination

import (
	"time"

	"github.com/Iron-Ham/collabd/internal/conflict"
	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/fieldlock"
	"github.com/Iron-Ham/collabd/internal/presence"
	"github.com/Iron-Ham/collabd/internal/session"
)

// JoinResult is what a joining caller needs to render the session.
type JoinResult struct {
	Participant session.Participant
	Online      []session.Participant
	Locks       []session.FieldLock
	Conflicts   []session.Conflict
	Fields      map[string]session.FieldSnapshot
	Version     int64
}

// Change is a client-proposed field value.
type Change struct {
	FieldName   string
	OldValue    any
	NewValue    any
	BaseVersion *int64
}

// Summary is the admin listing view of a session.
type Summary struct {
	EntityType       string         `json:"entityType"`
	EntityID         string         `json:"entityId"`
	Status           session.Status `json:"status"`
	Participants     int            `json:"participants"`
	Locks            int            `json:"locks"`
	PendingConflicts int            `json:"pendingConflicts"`
	Version          int64          `json:"version"`
	LastActivity     time.Time      `json:"lastActivity"`
}

func authorize(c Caller, op string) error {
	if c.UserID == "" {
		return errors.NewIdentityError(op)
	}
	return nil
}

func requireKey(key session.Key) error {
	return errors.RequireNonEmpty("entityType", key.EntityType, "entityId", key.EntityID)
}

// admit runs the checks every session command shares: identity, key shape,
// session existence and membership.
func (h *Hub) admit(c Caller, key session.Key, op string) error {
	if err := authorize(c, op); err != nil {
		return err
	}
	if err := requireKey(key); err != nil {
		return err
	}
	if _, err := h.store.Require(key, op); err != nil {
		return err
	}
	if !h.registry.IsParticipant(key, c.UserID) {
		return errors.NewSessionError(op, errors.ErrNotParticipant).
			WithEntity(key.EntityType, key.EntityID)
	}
	return nil
}

// requireMember returns a guard that rejects users who are not participants
// of the session. It runs inside the component's critical section.
func requireMember(op string) func(st *session.State, fieldName, userID string) error {
	return func(st *session.State, _, userID string) error {
		if _, ok := st.Participant(userID); !ok {
			return errors.NewSessionError(op, errors.ErrNotParticipant).
				WithEntity(st.Key.EntityType, st.Key.EntityID)
		}
		return nil
	}
}

// JoinSession adds the caller to the session, creating it on first use.
func (h *Hub) JoinSession(c Caller, key session.Key) (JoinResult, error) {
	if err := authorize(c, "join session"); err != nil {
		return JoinResult{}, err
	}
	p, err := h.registry.Join(presence.JoinRequest{
		Key:          key,
		UserID:       c.UserID,
		UserName:     c.displayName(),
		Email:        c.Email,
		Avatar:       c.Avatar,
		ConnectionID: c.ConnectionID,
	})
	if err != nil {
		return JoinResult{}, err
	}

	res := JoinResult{Participant: p}
	if sess, ok := h.store.Get(key); ok {
		snap := sess.Snapshot()
		res.Online = snap.Participants
		res.Locks = snap.Locks
		res.Conflicts = snap.Conflicts
		res.Fields = snap.Fields
		res.Version = snap.Version
	}
	return res, nil
}

// LeaveSession removes the caller's connection from the session. Leaving a
// session the caller is not in reports false.
func (h *Hub) LeaveSession(c Caller, key session.Key) (bool, error) {
	if err := authorize(c, "leave session"); err != nil {
		return false, err
	}
	if err := requireKey(key); err != nil {
		return false, err
	}
	return h.registry.Leave(key, c.UserID, c.ConnectionID)
}

// LockField tries to lock fieldName for the caller. A denial is reported
// in the result, not as an error.
func (h *Hub) LockField(c Caller, key session.Key, fieldName string) (fieldlock.LockResult, error) {
	if err := h.admit(c, key, "lock field"); err != nil {
		return fieldlock.LockResult{}, err
	}
	res, err := h.locks.Lock(key, fieldName, c.UserID, c.displayName())
	if err != nil {
		return fieldlock.LockResult{}, err
	}
	h.registry.Touch(key, c.UserID)
	return res, nil
}

// UnlockField releases the caller's lock on fieldName.
func (h *Hub) UnlockField(c Caller, key session.Key, fieldName string) (fieldlock.UnlockResult, error) {
	if err := h.admit(c, key, "unlock field"); err != nil {
		return fieldlock.UnlockResult{}, err
	}
	res, err := h.locks.Unlock(key, fieldName, c.UserID)
	if err != nil {
		return fieldlock.UnlockResult{}, err
	}
	h.registry.Touch(key, c.UserID)
	return res, nil
}

// BroadcastChange submits a field change on behalf of the caller.
func (h *Hub) BroadcastChange(c Caller, key session.Key, ch Change) (conflict.SubmitResult, error) {
	if err := h.admit(c, key, "broadcast change"); err != nil {
		return conflict.SubmitResult{}, err
	}
	res, err := h.engine.Submit(key, conflict.ChangeRequest{
		FieldName:    ch.FieldName,
		OldValue:     ch.OldValue,
		NewValue:     ch.NewValue,
		AuthorID:     c.UserID,
		AuthorName:   c.displayName(),
		ConnectionID: c.ConnectionID,
		BaseVersion:  ch.BaseVersion,
	})
	if err != nil {
		return conflict.SubmitResult{}, err
	}
	h.registry.Touch(key, c.UserID)
	return res, nil
}

// StartTyping marks the caller as typing in fieldName.
func (h *Hub) StartTyping(c Caller, key session.Key, fieldName string) error {
	if err := h.admit(c, key, "start typing"); err != nil {
		return err
	}
	return h.typing.StartTyping(key, fieldName, c.UserID)
}

// StopTyping clears the caller's typing entry for fieldName.
func (h *Hub) StopTyping(c Caller, key session.Key, fieldName string) error {
	if err := h.admit(c, key, "stop typing"); err != nil {
		return err
	}
	_, err := h.typing.StopTyping(key, fieldName, c.UserID)
	return err
}

// conflictIn reports ErrConflictNotFound unless conflictID belongs to key.
func (h *Hub) conflictIn(key session.Key, conflictID string) error {
	if err := errors.RequireNonEmpty("conflictId", conflictID); err != nil {
		return err
	}
	if owner, ok := h.engine.SessionOf(conflictID); !ok || owner != key {
		return errors.NewNotFoundError("conflict", conflictID).WithCause(errors.ErrConflictNotFound)
	}
	return nil
}

// ResolveConflict settles a pending conflict in the caller's session with
// chosenValue. chosenUserID defaults to the caller.
func (h *Hub) ResolveConflict(c Caller, key session.Key, conflictID string, chosenValue any, chosenUserID string) (session.Conflict, error) {
	if err := h.admit(c, key, "resolve conflict"); err != nil {
		return session.Conflict{}, err
	}
	if err := h.conflictIn(key, conflictID); err != nil {
		return session.Conflict{}, err
	}
	resolved, err := h.engine.Resolve(conflictID, chosenValue, chosenUserID, c.UserID)
	if err != nil {
		return session.Conflict{}, err
	}
	h.registry.Touch(key, c.UserID)
	return resolved, nil
}

// IgnoreConflict dismisses a pending conflict in the caller's session.
func (h *Hub) IgnoreConflict(c Caller, key session.Key, conflictID string) (session.Conflict, error) {
	if err := h.admit(c, key, "ignore conflict"); err != nil {
		return session.Conflict{}, err
	}
	if err := h.conflictIn(key, conflictID); err != nil {
		return session.Conflict{}, err
	}
	ignored, err := h.engine.Ignore(conflictID, c.UserID)
	if err != nil {
		return session.Conflict{}, err
	}
	h.registry.Touch(key, c.UserID)
	return ignored, nil
}

// UpdatePresence changes the caller's presence status.
func (h *Hub) UpdatePresence(c Caller, key session.Key, status string) error {
	if err := h.admit(c, key, "update presence"); err != nil {
		return err
	}
	return h.registry.SetStatus(key, c.UserID, session.PresenceStatus(status))
}

// Disconnect cleans up after a lost connection. It never fails; an
// anonymous connection has nothing to clean up.
func (h *Hub) Disconnect(c Caller) presence.DisconnectReport {
	if c.UserID == "" || c.ConnectionID == "" {
		return presence.DisconnectReport{}
	}
	return h.registry.Disconnect(c.UserID, c.ConnectionID)
}

// Sessions summarizes every live session ordered by key.
func (h *Hub) Sessions() []Summary {
	sessions := h.store.Sessions()
	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		snap := sess.Snapshot()
		out = append(out, Summary{
			EntityType:       snap.EntityType,
			EntityID:         snap.EntityID,
			Status:           snap.Status,
			Participants:     len(snap.Participants),
			Locks:            len(snap.Locks),
			PendingConflicts: len(snap.Conflicts),
			Version:          snap.Version,
			LastActivity:     snap.LastActivity,
		})
	}
	return out
}

// Snapshot returns a deep copy of one session.
func (h *Hub) Snapshot(key session.Key) (session.Snapshot, error) {
	if err := requireKey(key); err != nil {
		return session.Snapshot{}, err
	}
	sess, err := h.store.Require(key, "snapshot")
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}
