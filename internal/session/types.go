package session

import (
	"maps"
	"time"

	"github.com/Iron-Ham/collabd/internal/event"
)

// Key identifies a session by the entity it edits.
type Key struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

func (k Key) String() string { return k.EntityType + "/" + k.EntityID }

// Group returns the notification group for the session.
func (k Key) Group() string { return event.GroupName(k.EntityType, k.EntityID) }

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// PresenceStatus is a participant's self-reported availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// ParsePresenceStatus validates a client-supplied status string.
func ParsePresenceStatus(s string) (PresenceStatus, bool) {
	switch p := PresenceStatus(s); p {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return p, true
	}
	return "", false
}

// Participant is a user's presence in a session.
type Participant struct {
	UserID       string               `json:"userId"`
	UserName     string               `json:"userName"`
	Email        string               `json:"email,omitempty"`
	Avatar       string               `json:"avatar,omitempty"`
	ConnectionID string               `json:"connectionId"`
	JoinedAt     time.Time            `json:"joinedAt"`
	LastActivity time.Time            `json:"lastActivity"`
	Status       PresenceStatus       `json:"status"`
	TypingFields map[string]time.Time `json:"typingFields,omitempty"`
}

// Clone returns a copy that shares no maps with p.
func (p Participant) Clone() Participant {
	p.TypingFields = maps.Clone(p.TypingFields)
	return p
}

// Info converts the participant to its notification payload.
func (p Participant) Info() event.UserInfo {
	return event.UserInfo{
		UserID:   p.UserID,
		UserName: p.UserName,
		Email:    p.Email,
		Avatar:   p.Avatar,
		Status:   string(p.Status),
		JoinedAt: p.JoinedAt,
	}
}

// FieldLock is an advisory, time-bounded claim on one field.
type FieldLock struct {
	FieldName string    `json:"fieldName"`
	OwnerID   string    `json:"ownerId"`
	OwnerName string    `json:"ownerName"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the lock has lapsed at now.
func (l FieldLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// ChangeType classifies a change log entry.
type ChangeType string

const (
	ChangeCreate ChangeType = "Create"
	ChangeUpdate ChangeType = "Update"
	ChangeDelete ChangeType = "Delete"
	ChangeLock   ChangeType = "Lock"
	ChangeUnlock ChangeType = "Unlock"
)

// FieldChange is one entry of a session's change log. Values are treated as
// immutable once recorded.
type FieldChange struct {
	ID         string     `json:"id"`
	FieldName  string     `json:"fieldName"`
	OldValue   any        `json:"oldValue"`
	NewValue   any        `json:"newValue"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	Timestamp  time.Time  `json:"timestamp"`
	Version    int64      `json:"version"`
	Type       ChangeType `json:"type"`
}

// ConflictStatus is the state of a conflict.
type ConflictStatus string

const (
	ConflictPending      ConflictStatus = "Pending"
	ConflictResolved     ConflictStatus = "Resolved"
	ConflictIgnored      ConflictStatus = "Ignored"
	ConflictAutoResolved ConflictStatus = "AutoResolved"
)

// ConflictingChange is one author's competing value.
type ConflictingChange struct {
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Value      any       `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Version    int64     `json:"version"`
}

// Conflict records concurrent, unobserved edits of the same field.
type Conflict struct {
	ID         string              `json:"id"`
	FieldName  string              `json:"fieldName"`
	Changes    []ConflictingChange `json:"changes"`
	DetectedAt time.Time           `json:"detectedAt"`
	Status     ConflictStatus      `json:"status"`
	ResolvedBy string              `json:"resolvedBy,omitempty"`
	ResolvedAt time.Time           `json:"resolvedAt,omitzero"`
	Resolution any                 `json:"resolution,omitempty"`
}

// Clone returns a copy with its own Changes slice.
func (c Conflict) Clone() Conflict {
	c.Changes = append([]ConflictingChange(nil), c.Changes...)
	return c
}

// Pending reports whether the conflict still awaits a decision.
func (c Conflict) Pending() bool { return c.Status == ConflictPending }

// FieldSnapshot is the last accepted value of a field.
type FieldSnapshot struct {
	Value      any       `json:"value"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
