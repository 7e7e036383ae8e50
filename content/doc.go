// Package content stores the fixed feeding locations and the status posts
// members write about them.
//
// Locations are seeded once when the [Store] is opened and are never created
// or deleted afterwards. A post updates its location's latest details in the
// same SQL transaction that inserts it, so the landing page and the post
// history never disagree.
//
// # What this package must NOT do
//
//   - Authenticate or authorize the author. The caller passes a username it
//     already trusts.
//   - Read or write image bytes. Posts carry the upload key only.
package content
