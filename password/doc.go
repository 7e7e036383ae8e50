// Package password implements the salted SHA-512 credential codec used for
// member accounts.
//
// # Output format
//
// Credentials are stored as a single string:
//
//	<hex salt>:<hex sha512(hex salt ++ plaintext)>
//
// With the default 16-byte salt the string matches
// ^[0-9a-f]{32}:[0-9a-f]{128}$. The hex rendering of the salt is what enters the
// digest, so existing account rows keep verifying.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// character classes) is enforced by internal/validate through the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive pairs.
//   - Import any other catfeed package.
//   - Log plaintext passwords.
package password
