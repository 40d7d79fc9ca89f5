// Package presence tracks who is in which collaboration session.
//
// A participant is keyed by user id. Joining again from a new connection
// replaces the stored connection (last connection wins) and keeps the
// user's place in the join order. Leave and Disconnect only act when the
// connection id matches the stored one, so a stale connection closing late
// cannot evict the user's live connection.
//
// Leaving releases the user's field locks and typing indicators in the same
// critical section that removes the participant, then announces all of it
// once the session lock is released.
package presence
