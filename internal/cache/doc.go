// Package cache defines the keyed store behind collaboration sessions.
//
// [Store] is a small map-like interface with per-entry TTLs. The in-process
// [Memory] implementation backs a single collabd instance; a distributed
// backend can satisfy the same interface without changes to the session
// layer.
//
// Expiry is advisory. [Store.Expired] reports keys whose TTL has elapsed but
// does not remove them, so the owner can re-check its own invariants and
// evict through [Store.DeleteIf].
package cache
