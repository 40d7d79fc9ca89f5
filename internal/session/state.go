package session

import (
	"slices"
	"sort"
	"time"
)

// State is the mutable content of a session. It is only valid inside the
// callbacks passed to Session.Update and Session.View; do not retain
// pointers obtained from it after the callback returns.
type State struct {
	Key          Key
	CreatedAt    time.Time
	LastActivity time.Time
	Status       Status

	// Version is the session's monotonic change counter.
	Version int64

	participants map[string]*Participant
	order        []string // user ids in join order

	Locks   map[string]FieldLock // field name -> lock
	Changes []FieldChange
	Fields  map[string]FieldSnapshot // field name -> last accepted value

	conflicts     []*Conflict
	conflictsByID map[string]*Conflict
}

func newState(key Key, now time.Time) State {
	return State{
		Key:           key,
		CreatedAt:     now,
		LastActivity:  now,
		Status:        StatusInactive,
		participants:  make(map[string]*Participant),
		Locks:         make(map[string]FieldLock),
		Fields:        make(map[string]FieldSnapshot),
		conflictsByID: make(map[string]*Conflict),
	}
}

// NextVersion consumes and returns the next change version.
func (st *State) NextVersion() int64 {
	st.Version++
	return st.Version
}

// Touch records activity at now.
func (st *State) Touch(now time.Time) {
	if now.After(st.LastActivity) {
		st.LastActivity = now
	}
}

// AppendChange adds an entry to the change log.
func (st *State) AppendChange(c FieldChange) {
	st.Changes = append(st.Changes, c)
}

// ChangesSince returns copies of the log entries with a version greater than
// since. Lock and Unlock entries carry the version current when they were
// recorded and are included by the same rule.
func (st *State) ChangesSince(since int64) []FieldChange {
	i := sort.Search(len(st.Changes), func(i int) bool {
		return st.Changes[i].Version > since
	})
	return slices.Clone(st.Changes[i:])
}

// -----------------------------------------------------------------------------
// Participants
// -----------------------------------------------------------------------------

// Participant returns the live entry for userID.
func (st *State) Participant(userID string) (*Participant, bool) {
	p, ok := st.participants[userID]
	return p, ok
}

// UpsertParticipant stores p keyed by user id. An existing user keeps its
// position in the join order.
func (st *State) UpsertParticipant(p Participant) *Participant {
	if _, exists := st.participants[p.UserID]; !exists {
		st.order = append(st.order, p.UserID)
	}
	stored := p
	st.participants[p.UserID] = &stored
	return &stored
}

// RemoveParticipant deletes userID. Returns the removed entry.
func (st *State) RemoveParticipant(userID string) (Participant, bool) {
	p, ok := st.participants[userID]
	if !ok {
		return Participant{}, false
	}
	delete(st.participants, userID)
	st.order = slices.DeleteFunc(st.order, func(id string) bool { return id == userID })
	return *p, true
}

// ParticipantCount returns the number of participants.
func (st *State) ParticipantCount() int {
	return len(st.participants)
}

// Participants returns copies of all participants in join order.
func (st *State) Participants() []Participant {
	out := make([]Participant, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.participants[id].Clone())
	}
	return out
}

// -----------------------------------------------------------------------------
// Locks
// -----------------------------------------------------------------------------

// ActiveLocks returns the unexpired locks sorted by field name.
func (st *State) ActiveLocks(now time.Time) []FieldLock {
	out := make([]FieldLock, 0, len(st.Locks))
	for _, l := range st.Locks {
		if !l.Expired(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out
}

// -----------------------------------------------------------------------------
// Conflicts
// -----------------------------------------------------------------------------

// AddConflict appends c to the session's conflicts.
func (st *State) AddConflict(c *Conflict) {
	st.conflicts = append(st.conflicts, c)
	st.conflictsByID[c.ID] = c
}

// Conflict returns the live conflict with the given id.
func (st *State) Conflict(id string) (*Conflict, bool) {
	c, ok := st.conflictsByID[id]
	return c, ok
}

// PendingConflict returns the pending conflict on fieldName, if any.
func (st *State) PendingConflict(fieldName string) (*Conflict, bool) {
	for _, c := range st.conflicts {
		if c.FieldName == fieldName && c.Pending() {
			return c, true
		}
	}
	return nil, false
}

// Conflicts returns copies of the session's conflicts in detection order.
func (st *State) Conflicts(pendingOnly bool) []Conflict {
	out := make([]Conflict, 0, len(st.conflicts))
	for _, c := range st.conflicts {
		if pendingOnly && !c.Pending() {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// refreshStatus derives Active/Inactive from the participant count.
func (st *State) refreshStatus() {
	if st.Status == StatusArchived {
		return
	}
	if len(st.participants) > 0 {
		st.Status = StatusActive
	} else {
		st.Status = StatusInactive
	}
}

// trimChanges drops the oldest change log entries beyond limit.
func (st *State) trimChanges(limit int) {
	if limit <= 0 || len(st.Changes) <= limit {
		return
	}
	st.Changes = slices.Clone(st.Changes[len(st.Changes)-limit:])
}
