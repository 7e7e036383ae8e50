// Package session provides Redis-backed persistence for visitor sessions and
// their compact binary encoding.
//
// # Binary encoding
//
// Sessions are stored as a versioned binary blob. Strings are length-prefixed
// and integers are big-endian, so a record stays well under a few hundred bytes
// even with a pending flash notice.
//
// # Concurrency
//
// Every read-modify-write goes through a WATCH transaction. [Store.Replace]
// rejects a write whose Version no longer matches the stored record, and
// [Store.Mutate] retries a bounded number of times before giving up with
// [ErrVersionConflict].
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not interpret
// roles, CSRF tokens, or flash notices; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import catfeed or any package that imports it.
//   - Extend a session's ExpiresAt after creation.
//   - Log CSRF tokens.
package session
