// Package internal contains helper utilities that are intentionally private to catfeed,
// including secure random generation for session IDs, CSRF tokens and reset IDs.
//
// # Sub-packages
//
//   - stores: short-lived Redis record stores (password reset)
//   - validate: registration and profile input rules
//
// # What this package must NOT do
//
//   - Export types that appear in the public catfeed API.
//   - Be imported by any package outside the catfeed module.
package internal
