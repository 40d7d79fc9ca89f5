package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "user.joined", "field.locked")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event types published by the collaboration core.
const (
	TypeUserJoined        = "user.joined"
	TypeUserLeft          = "user.left"
	TypeFieldLocked       = "field.locked"
	TypeFieldUnlocked     = "field.unlocked"
	TypeDataChanged       = "data.changed"
	TypeConflictDetected  = "conflict.detected"
	TypeConflictResolved  = "conflict.resolved"
	TypeUserTyping        = "typing.started"
	TypeUserStoppedTyping = "typing.stopped"
	TypePresenceChanged   = "presence.changed"
)

// GroupName returns the delivery group for an entity's session.
func GroupName(entityType, entityID string) string {
	return "collaboration_" + entityType + "_" + entityID
}

// Route tells the gateway who receives a notification.
type Route struct {
	Group string
	// Except is a connection id excluded from delivery. Empty means the
	// whole group receives the notification.
	Except string
}

// Notification is an event addressed to a collaboration group.
type Notification interface {
	Event
	// Name is the client-facing notification name, e.g. "UserJoined".
	Name() string
	Route() Route
}

// notification carries routing for every collaboration event. Its fields
// are unexported so JSON encoding of the concrete event only emits payload.
type notification struct {
	baseEvent
	name  string
	route Route
}

func (n notification) Name() string { return n.name }
func (n notification) Route() Route { return n.route }

func newNotification(eventType, name, entityType, entityID, except string) notification {
	return notification{
		baseEvent: newBaseEvent(eventType),
		name:      name,
		route:     Route{Group: GroupName(entityType, entityID), Except: except},
	}
}

// Entity identifies the record a session edits.
type Entity struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// -----------------------------------------------------------------------------
// Presence Events
// -----------------------------------------------------------------------------

// UserInfo is the public view of a participant.
type UserInfo struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Email    string    `json:"email,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
}

// UserJoinedEvent is sent to the other members when a user joins a session.
type UserJoinedEvent struct {
	notification
	Entity
	User UserInfo `json:"user"`
}

// NewUserJoinedEvent creates a UserJoinedEvent that skips the joining connection.
func NewUserJoinedEvent(entityType, entityID string, user UserInfo, connectionID string) UserJoinedEvent {
	return UserJoinedEvent{
		notification: newNotification(TypeUserJoined, "UserJoined", entityType, entityID, connectionID),
		Entity:       Entity{entityType, entityID},
		User:         user,
	}
}

// UserLeftEvent is sent to the group when a user leaves or disconnects.
type UserLeftEvent struct {
	notification
	Entity
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// NewUserLeftEvent creates a UserLeftEvent.
func NewUserLeftEvent(entityType, entityID, userID, userName string) UserLeftEvent {
	return UserLeftEvent{
		notification: newNotification(TypeUserLeft, "UserLeft", entityType, entityID, ""),
		Entity:       Entity{entityType, entityID},
		UserID:       userID,
		UserName:     userName,
	}
}

// PresenceChangedEvent is sent to the group when a user's status changes.
type PresenceChangedEvent struct {
	notification
	Entity
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// NewPresenceChangedEvent creates a PresenceChangedEvent.
func NewPresenceChangedEvent(entityType, entityID, userID, status string) PresenceChangedEvent {
	return PresenceChangedEvent{
		notification: newNotification(TypePresenceChanged, "PresenceChanged", entityType, entityID, ""),
		Entity:       Entity{entityType, entityID},
		UserID:       userID,
		Status:       status,
	}
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// FieldLockedEvent is sent to the group when a field lock is granted.
type FieldLockedEvent struct {
	notification
	Entity
	FieldName string    `json:"fieldName"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewFieldLockedEvent creates a FieldLockedEvent.
func NewFieldLockedEvent(entityType, entityID, fieldName, userID, userName string, expiresAt time.Time) FieldLockedEvent {
	return FieldLockedEvent{
		notification: newNotification(TypeFieldLocked, "FieldLocked", entityType, entityID, ""),
		Entity:       Entity{entityType, entityID},
		FieldName:    fieldName,
		UserID:       userID,
		UserName:     userName,
		ExpiresAt:    expiresAt,
	}
}

// Unlock reasons carried by FieldUnlockedEvent.
const (
	UnlockReleased     = "released"
	UnlockExpired      = "expired"
	UnlockLeft         = "left"
	UnlockDisconnected = "disconnected"
)

// FieldUnlockedEvent is sent to the group when a field lock goes away.
type FieldUnlockedEvent struct {
	notification
	Entity
	FieldName string `json:"fieldName"`
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
}

// NewFieldUnlockedEvent creates a FieldUnlockedEvent.
func NewFieldUnlockedEvent(entityType, entityID, fieldName, userID, reason string) FieldUnlockedEvent {
	return FieldUnlockedEvent{
		notification: newNotification(TypeFieldUnlocked, "FieldUnlocked", entityType, entityID, ""),
		Entity:       Entity{entityType, entityID},
		FieldName:    fieldName,
		UserID:       userID,
		Reason:       reason,
	}
}

// -----------------------------------------------------------------------------
// Change Events
// -----------------------------------------------------------------------------

// DataChangedEvent announces an accepted field value.
type DataChangedEvent struct {
	notification
	Entity
	ChangeID   string `json:"changeId"`
	FieldName  string `json:"fieldName"`
	OldValue   any    `json:"oldValue"`
	NewValue   any    `json:"newValue"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Version    int64  `json:"version"`
	ChangeType string `json:"changeType"`
}

// DataChange holds the payload of a DataChangedEvent.
type DataChange struct {
	ChangeID   string
	FieldName  string
	OldValue   any
	NewValue   any
	UserID     string
	UserName   string
	Version    int64
	ChangeType string
}

// NewDataChangedEvent creates a DataChangedEvent. except is the sender's
// connection id, or empty to deliver to the whole group.
func NewDataChangedEvent(entityType, entityID string, c DataChange, except string) DataChangedEvent {
	return DataChangedEvent{
		notification: newNotification(TypeDataChanged, "DataChanged", entityType, entityID, except),
		Entity:       Entity{entityType, entityID},
		ChangeID:     c.ChangeID,
		FieldName:    c.FieldName,
		OldValue:     c.OldValue,
		NewValue:     c.NewValue,
		UserID:       c.UserID,
		UserName:     c.UserName,
		Version:      c.Version,
		ChangeType:   c.ChangeType,
	}
}

// ConflictingValue is one author's competing value for a field.
type ConflictingValue struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Value     any       `json:"value"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ConflictDetectedEvent is sent to the whole group when edits collide.
type ConflictDetectedEvent struct {
	notification
	Entity
	ConflictID string             `json:"conflictId"`
	FieldName  string             `json:"fieldName"`
	Changes    []ConflictingValue `json:"changes"`
}

// NewConflictDetectedEvent creates a ConflictDetectedEvent.
func NewConflictDetectedEvent(entityType, entityID, conflictID, fieldName string, changes []ConflictingValue) ConflictDetectedEvent {
	return ConflictDetectedEvent{
		notification: newNotification(TypeConflictDetected, "ConflictDetected", entityType, entityID, ""),
		Entity:       Entity{entityType, entityID},
		ConflictID:   conflictID,
		FieldName:    fieldName,
		Changes:      changes,
	}
}

// ConflictResolvedEvent is sent to the group when a conflict is settled.
type ConflictResolvedEvent struct {
	notification
	Entity
	ConflictID   string `json:"conflictId"`
	FieldName    string `json:"fieldName"`
	Status       string `json:"status"`
	Value        any    `json:"value,omitempty"`
	ChosenUserID string `json:"chosenUserId,omitempty"`
	ResolvedBy   string `json:"resolvedBy"`
}

// NewConflictResolvedEvent creates a ConflictResolvedEvent.
func NewConflictResolvedEvent(entityType, entityID, conflictID, fieldName, status string, value any, chosenUserID, resolvedBy string) ConflictResolvedEvent {
	return ConflictResolvedEvent{
		notification: newNotification(TypeConflictResolved, "ConflictResolved", entityType, entityID, ""),
		Entity:       Entity{entityType, entityID},
		ConflictID:   conflictID,
		FieldName:    fieldName,
		Status:       status,
		Value:        value,
		ChosenUserID: chosenUserID,
		ResolvedBy:   resolvedBy,
	}
}

// -----------------------------------------------------------------------------
// Typing Events
// -----------------------------------------------------------------------------

// UserTypingEvent is sent to the other members when a user starts typing.
type UserTypingEvent struct {
	notification
	Entity
	FieldName string `json:"fieldName"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

// NewUserTypingEvent creates a UserTypingEvent that skips the typist's connection.
func NewUserTypingEvent(entityType, entityID, fieldName, userID, userName, connectionID string) UserTypingEvent {
	return UserTypingEvent{
		notification: newNotification(TypeUserTyping, "UserTyping", entityType, entityID, connectionID),
		Entity:       Entity{entityType, entityID},
		FieldName:    fieldName,
		UserID:       userID,
		UserName:     userName,
	}
}

// UserStoppedTypingEvent is sent when a user's typing entry is removed.
type UserStoppedTypingEvent struct {
	notification
	Entity
	FieldName string `json:"fieldName"`
	UserID    string `json:"userId"`
}

// NewUserStoppedTypingEvent creates a UserStoppedTypingEvent.
func NewUserStoppedTypingEvent(entityType, entityID, fieldName, userID, except string) UserStoppedTypingEvent {
	return UserStoppedTypingEvent{
		notification: newNotification(TypeUserStoppedTyping, "UserStoppedTyping", entityType, entityID, except),
		Entity:       Entity{entityType, entityID},
		FieldName:    fieldName,
		UserID:       userID,
	}
}
