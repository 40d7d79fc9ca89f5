package gateway

import (
	"time"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/session"
)

// Client commands.
const (
	CmdJoinSession     = "JoinSession"
	CmdLeaveSession    = "LeaveSession"
	CmdLockField       = "LockField"
	CmdUnlockField     = "UnlockField"
	CmdBroadcastChange = "BroadcastChange"
	CmdStartTyping     = "StartTyping"
	CmdStopTyping      = "StopTyping"
	CmdResolveConflict = "ResolveConflict"
	CmdIgnoreConflict  = "IgnoreConflict"
	CmdUpdatePresence  = "UpdatePresence"
	CmdPing            = "Ping"
)

// Server-only frame names. Notification frames use the event's own name.
const (
	FrameOnlineUsers   = "OnlineUsersUpdated"
	FrameCommandResult = "CommandResult"
	FrameSystem        = "SystemNotification"
	FramePong          = "Pong"
)

// SystemNotification levels.
const (
	LevelWarning = "warning"
	LevelError   = "error"
)

// ClientFrame is a command sent by a client. Only the fields the command
// needs are read.
type ClientFrame struct {
	ID           string `json:"id,omitempty"`
	Command      string `json:"command"`
	EntityType   string `json:"entityType,omitempty"`
	EntityID     string `json:"entityId,omitempty"`
	FieldName    string `json:"fieldName,omitempty"`
	OldValue     any    `json:"oldValue,omitempty"`
	NewValue     any    `json:"newValue,omitempty"`
	BaseVersion  *int64 `json:"baseVersion,omitempty"`
	ConflictID   string `json:"conflictId,omitempty"`
	ChosenValue  any    `json:"chosenValue,omitempty"`
	ChosenUserID string `json:"chosenUserId,omitempty"`
	Status       string `json:"status,omitempty"`
}

func (f ClientFrame) key() session.Key {
	return session.Key{EntityType: f.EntityType, EntityID: f.EntityID}
}

// ServerFrame is everything the server sends.
type ServerFrame struct {
	Event     string    `json:"event"`
	Group     string    `json:"group,omitempty"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemNotification reports a failed command to its caller only.
type SystemNotification struct {
	Level   string      `json:"level"`
	Message string      `json:"message"`
	Kind    errors.Kind `json:"kind,omitempty"`
}

// OnlineUsers is the caller's view of a session right after joining.
type OnlineUsers struct {
	EntityType string                           `json:"entityType"`
	EntityID   string                           `json:"entityId"`
	Users      []session.Participant            `json:"users"`
	Locks      []session.FieldLock              `json:"locks"`
	Conflicts  []session.Conflict               `json:"conflicts"`
	Fields     map[string]session.FieldSnapshot `json:"fields"`
	Version    int64                            `json:"version"`
}

// CommandResult acknowledges a successful command.
type CommandResult struct {
	Command    string             `json:"command"`
	Accepted   bool               `json:"accepted"`
	Silent     bool               `json:"silent,omitempty"`
	Version    int64              `json:"version,omitempty"`
	ConflictID string             `json:"conflictId,omitempty"`
	Conflict   *session.Conflict  `json:"conflict,omitempty"`
	Lock       *session.FieldLock `json:"lock,omitempty"`
}
