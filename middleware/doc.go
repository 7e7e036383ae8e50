// Package middleware adapts the catfeed Engine to net/http.
//
// # Session guards
//
//   - [LoadSession] resolves the cookie session or silently starts a public one.
//   - [RequireSession] resolves the cookie session or starts a public one
//     carrying an entry notice and redirects to [LoginPath].
//   - [RequireRole] flashes a notice and redirects unless the session role is
//     allowed.
//
// The resolved session is available through [SessionFromContext].
//
// # Observability
//
// [HTTPMetrics] records request counters and latency with promauto, and
// [Tracing] opens an OpenTelemetry span per request.
//
// # What this package must NOT do
//
//   - Read or write Redis directly. All session I/O goes through the Engine.
//   - Decide authorization beyond [catfeed.Authorize].
package middleware
