// Package jwt signs and verifies the tokens embedded in password reset links.
//
// A token binds an account username to the identifier of a single-use reset
// record; the record itself lives in Redis and is consumed separately.
package jwt
