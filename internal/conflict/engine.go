package conflict

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/session"
)

// ChangeRequest is a proposed new value for one field
type ChangeRequest struct {
	FieldName  string
	OldValue   any
	NewValue   any
	AuthorID   string
	AuthorName string

	// ConnectionID is the submitting connection; it is excluded from the
	// DataChanged fan-out.
	ConnectionID string

	// BaseVersion is the session version the author last observed. A
	// submission that has seen the prior value's version is not a conflict.
	BaseVersion *int64
}

// SubmitResult is the outcome of Submit
type SubmitResult struct {
	Accepted bool
	// Silent is set when the value already matched and nothing was recorded.
	Silent   bool
	Change   *session.FieldChange
	Conflict *session.Conflict
}

// WriteGuard runs inside the submit critical section before any policy
// step. A non-nil error rejects the submission.
type WriteGuard func(st *session.State, fieldName, authorID string) error

// Option configures an Engine
type Option func(*Engine)

// WithWriteGuard installs a guard consulted on every submission.
func WithWriteGuard(g WriteGuard) Option {
	return func(e *Engine) {
		e.guard = g
	}
}

// WithLogger sets the engine's logger
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine accepts field changes and detects concurrent edits
type Engine struct {
	store  *session.Store
	bus    *event.Bus
	logger *logging.Logger
	guard  WriteGuard

	// conflict id -> owning session
	mu    sync.RWMutex
	index map[string]session.Key
}

// New creates an Engine over the given store and bus
func New(store *session.Store, bus *event.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		bus:    bus,
		logger: logging.NopLogger(),
		index:  make(map[string]session.Key),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome collects what Submit must publish once the session lock is released
type outcome struct {
	result   SubmitResult
	resolved bool // a pending conflict converged
	detected bool // a conflict was created or extended
}

// Submit applies the change policy for one field:
//
//  1. A pending conflict on the field absorbs the submission. When every
//     entry then carries the same value the conflict is auto-resolved and
//     that value accepted.
//  2. A value equal to the accepted one is accepted silently.
//  3. The submission takes the session's next version.
//  4. It is accepted when the field has no accepted value, the prior value
//     has the same author, or BaseVersion shows the prior value was seen.
//  5. Otherwise a pending conflict holding both values is created.
func (e *Engine) Submit(key session.Key, req ChangeRequest) (SubmitResult, error) {
	if err := errors.RequireNonEmpty("fieldName", req.FieldName, "authorId", req.AuthorID); err != nil {
		return SubmitResult{}, err
	}
	sess, err := e.store.Require(key, "submit change")
	if err != nil {
		return SubmitResult{}, err
	}

	var out outcome
	err = sess.Update(func(st *session.State) error {
		if e.guard != nil {
			if err := e.guard(st, req.FieldName, req.AuthorID); err != nil {
				return err
			}
		}
		now := e.store.Now()
		st.Touch(now)
		out = e.apply(st, req, now)
		return nil
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit %s on %s: %w", req.FieldName, key, err)
	}

	if c := out.result.Conflict; c != nil {
		e.mu.Lock()
		e.index[c.ID] = key
		e.mu.Unlock()
	}
	e.publishSubmit(key, req, out)
	return out.result, nil
}

func (e *Engine) apply(st *session.State, req ChangeRequest, now time.Time) outcome {
	if c, ok := st.PendingConflict(req.FieldName); ok {
		return e.joinConflict(st, c, req, now)
	}

	prior, hasPrior := st.Fields[req.FieldName]
	if (hasPrior && reflect.DeepEqual(prior.Value, req.NewValue)) || (!hasPrior && req.NewValue == nil) {
		return outcome{result: SubmitResult{Accepted: true, Silent: true}}
	}

	version := st.NextVersion()
	observed := req.BaseVersion != nil && *req.BaseVersion >= prior.Version
	if !hasPrior || prior.AuthorID == req.AuthorID || observed {
		oldValue := prior.Value
		if !hasPrior {
			oldValue = req.OldValue
		}
		change := accept(st, req.FieldName, oldValue, req.NewValue, req.AuthorID, req.AuthorName, version, now, changeType(hasPrior, req))
		return outcome{result: SubmitResult{Accepted: true, Change: &change}}
	}

	c := &session.Conflict{
		ID:        uuid.NewString(),
		FieldName: req.FieldName,
		Changes: []session.ConflictingChange{
			{
				AuthorID:   prior.AuthorID,
				AuthorName: prior.AuthorName,
				Value:      prior.Value,
				Timestamp:  prior.UpdatedAt,
				Version:    prior.Version,
			},
			{
				AuthorID:   req.AuthorID,
				AuthorName: req.AuthorName,
				Value:      req.NewValue,
				Timestamp:  now,
				Version:    version,
			},
		},
		DetectedAt: now,
		Status:     session.ConflictPending,
	}
	st.AddConflict(c)
	snapshot := c.Clone()
	return outcome{result: SubmitResult{Conflict: &snapshot}, detected: true}
}

// joinConflict adds or refreshes the author's entry on a pending conflict
func (e *Engine) joinConflict(st *session.State, c *session.Conflict, req ChangeRequest, now time.Time) outcome {
	entry := session.ConflictingChange{
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Value:      req.NewValue,
		Timestamp:  now,
		Version:    st.Version,
	}
	refreshed := false
	for i := range c.Changes {
		if c.Changes[i].AuthorID == req.AuthorID {
			c.Changes[i] = entry
			refreshed = true
			break
		}
	}
	if !refreshed {
		c.Changes = append(c.Changes, entry)
	}

	if !converged(c.Changes) {
		snapshot := c.Clone()
		return outcome{result: SubmitResult{Conflict: &snapshot}, detected: true}
	}

	c.Status = session.ConflictAutoResolved
	c.ResolvedAt = now
	c.ResolvedBy = req.AuthorID
	c.Resolution = req.NewValue

	prior := st.Fields[req.FieldName]
	version := st.NextVersion()
	change := accept(st, req.FieldName, prior.Value, req.NewValue, req.AuthorID, req.AuthorName, version, now, session.ChangeUpdate)
	snapshot := c.Clone()
	return outcome{
		result:   SubmitResult{Accepted: true, Change: &change, Conflict: &snapshot},
		resolved: true,
	}
}

func converged(changes []session.ConflictingChange) bool {
	for _, c := range changes[1:] {
		if !reflect.DeepEqual(c.Value, changes[0].Value) {
			return false
		}
	}
	return true
}

func changeType(hasPrior bool, req ChangeRequest) session.ChangeType {
	switch {
	case req.NewValue == nil:
		return session.ChangeDelete
	case !hasPrior && req.OldValue == nil:
		return session.ChangeCreate
	default:
		return session.ChangeUpdate
	}
}

// accept records value as the field's accepted value
func accept(st *session.State, field string, oldValue, newValue any, authorID, authorName string, version int64, now time.Time, typ session.ChangeType) session.FieldChange {
	change := session.FieldChange{
		ID:         uuid.NewString(),
		FieldName:  field,
		OldValue:   oldValue,
		NewValue:   newValue,
		AuthorID:   authorID,
		AuthorName: authorName,
		Timestamp:  now,
		Version:    version,
		Type:       typ,
	}
	st.AppendChange(change)
	st.Fields[field] = session.FieldSnapshot{
		Value:      newValue,
		AuthorID:   authorID,
		AuthorName: authorName,
		Version:    version,
		UpdatedAt:  now,
	}
	return change
}

func (e *Engine) publishSubmit(key session.Key, req ChangeRequest, out outcome) {
	log := e.logger.WithEntity(key.EntityType, key.EntityID).WithUser(req.AuthorID)
	res := out.result

	if out.resolved {
		c := res.Conflict
		log.Info("conflict auto-resolved", "conflict_id", c.ID, "field", c.FieldName)
		e.bus.Publish(event.NewConflictResolvedEvent(key.EntityType, key.EntityID, c.ID, c.FieldName,
			string(c.Status), c.Resolution, req.AuthorID, req.AuthorID))
	} else if out.detected {
		c := res.Conflict
		log.Info("conflict detected", "conflict_id", c.ID, "field", c.FieldName, "authors", len(c.Changes))
		e.bus.Publish(event.NewConflictDetectedEvent(key.EntityType, key.EntityID, c.ID, c.FieldName, conflictingValues(c)))
	}

	if res.Change != nil {
		log.Debug("change accepted", "field", res.Change.FieldName, "version", res.Change.Version)
		e.bus.Publish(event.NewDataChangedEvent(key.EntityType, key.EntityID, dataChange(*res.Change), req.ConnectionID))
	}
}

func dataChange(c session.FieldChange) event.DataChange {
	return event.DataChange{
		ChangeID:   c.ID,
		FieldName:  c.FieldName,
		OldValue:   c.OldValue,
		NewValue:   c.NewValue,
		UserID:     c.AuthorID,
		UserName:   c.AuthorName,
		Version:    c.Version,
		ChangeType: string(c.Type),
	}
}

func conflictingValues(c *session.Conflict) []event.ConflictingValue {
	out := make([]event.ConflictingValue, 0, len(c.Changes))
	for _, ch := range c.Changes {
		out = append(out, event.ConflictingValue{
			UserID:    ch.AuthorID,
			UserName:  ch.AuthorName,
			Value:     ch.Value,
			Version:   ch.Version,
			Timestamp: ch.Timestamp,
		})
	}
	return out
}

// lookup finds the session owning a conflict id
func (e *Engine) lookup(conflictID, op string) (session.Key, *session.Session, error) {
	if err := errors.RequireNonEmpty("conflictId", conflictID); err != nil {
		return session.Key{}, nil, err
	}
	e.mu.RLock()
	key, ok := e.index[conflictID]
	e.mu.RUnlock()
	if !ok {
		return session.Key{}, nil, errors.NewNotFoundError("conflict", conflictID).WithCause(errors.ErrConflictNotFound)
	}
	sess, err := e.store.Require(key, op)
	if err != nil {
		// The session was evicted; its conflicts went with it.
		e.mu.Lock()
		delete(e.index, conflictID)
		e.mu.Unlock()
		return key, nil, errors.NewNotFoundError("conflict", conflictID).WithCause(errors.ErrConflictNotFound)
	}
	return key, sess, nil
}

// settle loads a pending conflict inside an update, or reports why it cannot be settled
func settle(st *session.State, conflictID, op string) (*session.Conflict, error) {
	c, ok := st.Conflict(conflictID)
	if !ok {
		return nil, errors.NewNotFoundError("conflict", conflictID).WithCause(errors.ErrConflictNotFound)
	}
	if !c.Pending() {
		return nil, errors.NewSessionError(op, errors.ErrConflictSettled).
			WithEntity(st.Key.EntityType, st.Key.EntityID).
			WithField(c.FieldName)
	}
	return c, nil
}

// Resolve settles a pending conflict with chosenValue, attributed to
// chosenUserID, and records it as an accepted change
func (e *Engine) Resolve(conflictID string, chosenValue any, chosenUserID, resolvedBy string) (session.Conflict, error) {
	key, sess, err := e.lookup(conflictID, "resolve conflict")
	if err != nil {
		return session.Conflict{}, err
	}
	if chosenUserID == "" {
		chosenUserID = resolvedBy
	}

	var (
		resolved session.Conflict
		change   session.FieldChange
	)
	err = sess.Update(func(st *session.State) error {
		c, err := settle(st, conflictID, "resolve conflict")
		if err != nil {
			return err
		}
		now := e.store.Now()
		chosenName := ""
		for _, ch := range c.Changes {
			if ch.AuthorID == chosenUserID {
				chosenName = ch.AuthorName
			}
		}

		c.Status = session.ConflictResolved
		c.ResolvedBy = resolvedBy
		c.ResolvedAt = now
		c.Resolution = chosenValue

		prior := st.Fields[c.FieldName]
		version := st.NextVersion()
		change = accept(st, c.FieldName, prior.Value, chosenValue, chosenUserID, chosenName, version, now, session.ChangeUpdate)
		st.Touch(now)
		resolved = c.Clone()
		return nil
	})
	if err != nil {
		return session.Conflict{}, err
	}

	e.logger.WithEntity(key.EntityType, key.EntityID).WithUser(resolvedBy).Info("conflict resolved",
		"conflict_id", conflictID, "field", resolved.FieldName, "chosen_user_id", chosenUserID)
	e.bus.Publish(event.NewConflictResolvedEvent(key.EntityType, key.EntityID, conflictID, resolved.FieldName,
		string(resolved.Status), chosenValue, chosenUserID, resolvedBy))
	e.bus.Publish(event.NewDataChangedEvent(key.EntityType, key.EntityID, dataChange(change), ""))
	return resolved, nil
}

// Ignore dismisses a pending conflict and leaves the accepted value as is
func (e *Engine) Ignore(conflictID, ignoredBy string) (session.Conflict, error) {
	key, sess, err := e.lookup(conflictID, "ignore conflict")
	if err != nil {
		return session.Conflict{}, err
	}

	var ignored session.Conflict
	err = sess.Update(func(st *session.State) error {
		c, err := settle(st, conflictID, "ignore conflict")
		if err != nil {
			return err
		}
		now := e.store.Now()
		c.Status = session.ConflictIgnored
		c.ResolvedBy = ignoredBy
		c.ResolvedAt = now
		st.Touch(now)
		ignored = c.Clone()
		return nil
	})
	if err != nil {
		return session.Conflict{}, err
	}

	e.logger.WithEntity(key.EntityType, key.EntityID).WithUser(ignoredBy).Info("conflict ignored",
		"conflict_id", conflictID, "field", ignored.FieldName)
	e.bus.Publish(event.NewConflictResolvedEvent(key.EntityType, key.EntityID, conflictID, ignored.FieldName,
		string(ignored.Status), nil, "", ignoredBy))
	return ignored, nil
}

// Conflicts returns the session's conflicts in detection order
func (e *Engine) Conflicts(key session.Key, pendingOnly bool) []session.Conflict {
	sess, ok := e.store.Get(key)
	if !ok {
		return nil
	}
	var out []session.Conflict
	sess.View(func(st *session.State) {
		out = st.Conflicts(pendingOnly)
	})
	return out
}

// Changes returns change log entries newer than since
func (e *Engine) Changes(key session.Key, since int64) []session.FieldChange {
	sess, ok := e.store.Get(key)
	if !ok {
		return nil
	}
	var out []session.FieldChange
	sess.View(func(st *session.State) {
		out = st.ChangesSince(since)
	})
	return out
}

// Value returns the accepted value of a field
func (e *Engine) Value(key session.Key, fieldName string) (session.FieldSnapshot, bool) {
	sess, ok := e.store.Get(key)
	if !ok {
		return session.FieldSnapshot{}, false
	}
	var (
		snap  session.FieldSnapshot
		found bool
	)
	sess.View(func(st *session.State) {
		snap, found = st.Fields[fieldName]
	})
	return snap, found
}

// ConflictCount returns how many conflict ids the engine can resolve
func (e *Engine) ConflictCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

// SessionOf returns the session a conflict id belongs to.
func (e *Engine) SessionOf(conflictID string) (session.Key, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	key, ok := e.index[conflictID]
	return key, ok
}

// Forget drops the conflict ids of an evicted session and returns how many
// were removed.
func (e *Engine) Forget(key session.Key) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, k := range e.index {
		if k == key {
			delete(e.index, id)
			n++
		}
	}
	return n
}
