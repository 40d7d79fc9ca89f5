// Package conflict accepts field changes for collaboration sessions and
// surfaces concurrent edits as conflicts for people to settle.
//
// Each session remembers the last accepted value, author and version of
// every field. A submission from a different author that has not observed
// the current value becomes a pending conflict instead of silently
// overwriting it. Conflicts are settled with [Engine.Resolve] or
// [Engine.Ignore], or auto-resolve when every author converges on the same
// value.
//
// Values are compared with reflect.DeepEqual and are never mutated after
// being recorded.
package conflict
