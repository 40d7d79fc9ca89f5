// Package fieldlock provides advisory, time-bounded field locks inside
// collaboration sessions.
//
// A user locks a field before editing it so other participants can see who
// is working where. Locks are immediate accept/reject: there is no queue.
// A lock expires after a configurable duration (five minutes by default);
// expired locks are ignored by reads, replaced by the next Lock call, and
// removed by [Manager.SweepExpired].
//
// # Basic Usage
//
//	locks := fieldlock.NewManager(store, bus)
//
//	res, err := locks.Lock(key, "salary", "u-1", "Alice")
//	if err == nil && !res.Granted {
//	    // res.Reason is "locked by Bob"
//	}
//
//	locks.Unlock(key, "salary", "u-1")
//
// # Events
//
// Grants publish [event.FieldLockedEvent]; explicit unlocks and the expiry
// sweep publish [event.FieldUnlockedEvent]. [ReleaseOwned] does not
// publish: leave and disconnect handling announce the release with their
// own reason.
//
// # Thread Safety
//
// Each operation runs inside a single session critical section. Events are
// published after the section is released.
package fieldlock
