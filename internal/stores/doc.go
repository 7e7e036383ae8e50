// Package stores provides Redis-backed, short-lived record stores for
// account flows that outlive a single request. Today that is the
// password reset record behind an emailed reset link.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL
// derived from the record's absolute deadline. Consume uses WATCH/MULTI
// optimistic transactions with retry on contention, and deletes the record in
// the same transaction that reads it, so a link works at most once.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// records. It does NOT sign links, validate passwords, or touch accounts.
// Those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import catfeed or any sibling internal package.
//   - Log usernames or reset identifiers.
package stores
