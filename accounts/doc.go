// Package accounts persists catfeed accounts in SQLite.
//
// [SQLiteStore] implements catfeed.AccountProvider. Usernames are the primary
// key and compare exactly; emails are unique without regard to case. Stored
// credentials are opaque salt:digest strings produced by the password codec.
package accounts
