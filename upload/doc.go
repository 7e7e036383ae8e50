// Package upload stores the optional photo attached to a post.
//
// Two backends implement [Store]: [DiskStore] writes into a local directory
// served under /uploads/, and [S3Store] writes to a bucket through PutObject.
// Both cap the file size, sniff the content type, and name every file
// "<ulid>_<sanitized original name>" so keys sort by upload time and cannot
// carry a path.
//
// A [Janitor] removes files that were saved but never attached to a post, for
// example when the post itself was rejected after the upload succeeded.
package upload
