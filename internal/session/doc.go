// Package session holds the in-memory state of collaborative editing
// sessions, one per entity being edited.
//
// A [Session] owns its participants, field locks, change log, conflicts and
// last-accepted field values. State is only reachable through
// [Session.Update] and [Session.View], each of which runs as a single
// critical section on the session's mutex; every check-then-act sequence in
// the presence, fieldlock, conflict and typing packages is built on top of
// them.
//
// The [Store] keeps sessions in a [cache.Store] keyed by entity. Empty
// sessions are stamped with an idle TTL and evicted by [Store.SweepIdle].
// Eviction re-checks the participant count under the session lock, and a
// handle that lost the race reports [errors.ErrSessionEvicted] from Update
// so callers can resolve the key again.
//
// Lock order is store, then session. Code holding a session lock must never
// call back into the Store.
package session
