package gateway

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/fieldlock"
	"github.com/Iron-Ham/collabd/internal/session"
)

// handleFrame decodes and runs one client command. It never lets a failure
// escape: errors and panics become a SystemNotification to the caller.
func (s *Server) handleFrame(c *client, raw []byte) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		s.fail(c, f, errors.NewValidationError("malformed frame").WithValue(err.Error()))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.logger.WithEntity(f.EntityType, f.EntityID).Error("command panicked",
				"command", f.Command,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			s.fail(c, f, errors.NewSessionError(f.Command, errors.ErrInternal).
				WithEntity(f.EntityType, f.EntityID).
				WithSeverity(errors.SeverityCritical))
		}
	}()

	if err := s.dispatch(c, f); err != nil {
		s.fail(c, f, err)
	}
}

func (s *Server) dispatch(c *client, f ClientFrame) error {
	hub := s.hub
	caller := c.caller
	key := f.key()

	switch f.Command {
	case CmdPing:
		c.reply(ServerFrame{Event: FramePong, ReplyTo: f.ID})
		return nil

	case CmdJoinSession:
		// Join the group first so nothing published after the join is missed.
		// The joiner's own UserJoined is excluded by connection id.
		added := s.addToGroup(key.Group(), c)
		res, err := hub.JoinSession(caller, key)
		if err != nil {
			if added {
				s.removeFromGroup(key.Group(), c)
			}
			return err
		}
		c.reply(ServerFrame{
			Event:   FrameOnlineUsers,
			Group:   key.Group(),
			ReplyTo: f.ID,
			Data: OnlineUsers{
				EntityType: key.EntityType,
				EntityID:   key.EntityID,
				Users:      res.Online,
				Locks:      res.Locks,
				Conflicts:  res.Conflicts,
				Fields:     res.Fields,
				Version:    res.Version,
			},
		})
		return nil

	case CmdLeaveSession:
		left, err := hub.LeaveSession(caller, key)
		if err != nil {
			return err
		}
		s.removeFromGroup(key.Group(), c)
		s.ack(c, f, CommandResult{Command: f.Command, Accepted: left})
		return nil

	case CmdLockField:
		res, err := hub.LockField(caller, key, f.FieldName)
		if err != nil {
			return err
		}
		if !res.Granted {
			s.notify(c, f, SystemNotification{
				Level:   LevelWarning,
				Message: res.Reason,
				Kind:    errors.KindLockConflict,
			})
			return nil
		}
		s.ack(c, f, CommandResult{Command: f.Command, Accepted: true, Lock: &res.Lock})
		return nil

	case CmdUnlockField:
		res, err := hub.UnlockField(caller, key, f.FieldName)
		if err != nil {
			return err
		}
		if !res.Released && res.Reason != fieldlock.ReasonNotLocked {
			s.notify(c, f, SystemNotification{
				Level:   LevelWarning,
				Message: res.Reason,
				Kind:    errors.KindLockConflict,
			})
			return nil
		}
		s.ack(c, f, CommandResult{Command: f.Command, Accepted: res.Released})
		return nil

	case CmdBroadcastChange:
		res, err := hub.BroadcastChange(caller, key, coordination.Change{
			FieldName:   f.FieldName,
			OldValue:    f.OldValue,
			NewValue:    f.NewValue,
			BaseVersion: f.BaseVersion,
		})
		if err != nil {
			return err
		}
		out := CommandResult{Command: f.Command, Accepted: res.Accepted, Silent: res.Silent}
		if res.Change != nil {
			out.Version = res.Change.Version
		}
		if res.Conflict != nil {
			out.ConflictID = res.Conflict.ID
			out.Conflict = res.Conflict
		}
		s.ack(c, f, out)
		return nil

	case CmdStartTyping:
		return hub.StartTyping(caller, key, f.FieldName)

	case CmdStopTyping:
		return hub.StopTyping(caller, key, f.FieldName)

	case CmdResolveConflict:
		resolved, err := hub.ResolveConflict(caller, key, f.ConflictID, f.ChosenValue, f.ChosenUserID)
		if err != nil {
			return err
		}
		s.ack(c, f, conflictResult(f.Command, resolved))
		return nil

	case CmdIgnoreConflict:
		ignored, err := hub.IgnoreConflict(caller, key, f.ConflictID)
		if err != nil {
			return err
		}
		s.ack(c, f, conflictResult(f.Command, ignored))
		return nil

	case CmdUpdatePresence:
		return hub.UpdatePresence(caller, key, f.Status)

	default:
		return errors.NewValidationError("unknown command").WithField("command").WithValue(f.Command)
	}
}

func conflictResult(command string, c session.Conflict) CommandResult {
	return CommandResult{Command: command, Accepted: true, ConflictID: c.ID, Conflict: &c}
}

func (s *Server) ack(c *client, f ClientFrame, res CommandResult) {
	c.reply(ServerFrame{Event: FrameCommandResult, ReplyTo: f.ID, Data: res, Timestamp: now()})
}

func (s *Server) notify(c *client, f ClientFrame, n SystemNotification) {
	c.reply(ServerFrame{Event: FrameSystem, ReplyTo: f.ID, Data: n, Timestamp: now()})
}

// fail turns a command error into a SystemNotification for the caller.
// Internal faults are logged with full context and reported generically.
func (s *Server) fail(c *client, f ClientFrame, err error) {
	kind := errors.KindOf(err)
	log := c.logger.WithEntity(f.EntityType, f.EntityID)

	if kind == errors.KindInternal {
		log.Error("command failed", "command", f.Command, "error", err.Error())
		message := "internal error"
		if errors.IsUserFacing(err) {
			message = err.Error()
		}
		s.notify(c, f, SystemNotification{Level: LevelError, Message: message, Kind: kind})
		return
	}

	log.Debug("command rejected", "command", f.Command, "kind", string(kind), "error", err.Error())
	s.notify(c, f, SystemNotification{Level: LevelWarning, Message: err.Error(), Kind: kind})
}
