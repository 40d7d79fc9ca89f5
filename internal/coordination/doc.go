// Package coordination provides a Hub that wires the collaboration
// components together and exposes the commands a transport can invoke.
//
// The Hub owns one isolated set of components sharing a session store:
//
//   - Presence Registry (who is in which session)
//   - Field Lock Manager (advisory, optionally enforced, field locks)
//   - Change & Conflict Engine (versioned field values and conflicts)
//   - Typing Tracker (ephemeral typing indicators)
//
// Every command takes a [Caller] resolved by the trusted boundary. Commands
// validate identity and input before touching state and return either a
// result or an error classified by the errors package. Notifications go out
// on the event bus the Hub was built with.
//
// A background sweeper, started with Start, releases expired locks and
// evicts sessions that stayed empty for the idle timeout.
//
// Usage:
//
//	hub, err := coordination.NewHub(coordination.Config{
//	    Bus:    bus,
//	    Logger: logger,
//	}, coordination.WithLockDuration(5*time.Minute))
//	if err != nil {
//	    return err
//	}
//	if err := hub.Start(ctx); err != nil {
//	    return err
//	}
//	defer hub.Stop()
//
//	res, err := hub.JoinSession(caller, session.Key{EntityType: "employee", EntityID: "42"})
package coordination
