// Package catfeed is the session and account core of the catfeed community
// site: Redis-backed sessions with an absolute lifetime, one-shot flash
// notices, single-use CSRF tokens, salted SHA-512 credentials, and the
// registration, login, profile and password reset flows built on them.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// catfeed is the public surface. It exposes [Engine], [Builder], [Config],
// [Notice] and the account types. Session encoding lives in session/, reset
// records and form rules under internal/, and persistence of accounts, posts
// and uploads in the accounts/, content/ and upload/ packages. HTTP concerns
// stay in web/ and middleware/.
//
// # What this package must NOT do
//
//   - Open or close the Redis connection. The caller passes a client to
//     [Builder.WithRedis] and owns its lifetime.
//   - Tell an unknown username apart from a wrong password in anything a
//     visitor can see.
//   - Write a session's expiry past the deadline set when it was started.
//   - Import web/ or middleware/ (no import cycles).
//
// # Store round-trips
//
// GetSession is one Redis GET. Flash, CSRF and login updates are one
// WATCH/MULTI transaction each, retried on contention.
package catfeed
