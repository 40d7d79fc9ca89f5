// Package event provides the pub-sub bus and the notification types emitted
// by the collaboration core.
//
// The core components (presence, field locks, conflicts, typing) publish
// events after releasing their session lock. The gateway subscribes to all
// events and fans every [Notification] out to the members of its group.
//
// # Main Types
//
//   - [Event]: Interface that all events implement (EventType, Timestamp)
//   - [Notification]: An Event with a client-facing Name and a delivery [Route]
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//
// # Routing
//
// Every notification is addressed to the group returned by [GroupName]
// ("collaboration_{entityType}_{entityId}"). A non-empty Route.Except names
// the one connection that must not receive it, which is how DataChanged skips
// its sender and UserJoined skips the joiner.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeFieldLocked, func(e event.Event) {
//	    locked := e.(event.FieldLockedEvent)
//	    logger.Info("field locked", "field", locked.FieldName)
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    if n, ok := e.(event.Notification); ok {
//	        deliver(n.Route(), n.Name(), n)
//	    }
//	})
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - user.joined, user.left, presence.changed
//   - field.locked, field.unlocked
//   - data.changed
//   - conflict.detected, conflict.resolved
//   - typing.started, typing.stopped
package event
