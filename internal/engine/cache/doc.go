// Package cache provides a file-based store with TTL expiration for
// downloaded images.
//
// Entries are JSON files named by the SHA256 of the source URL, so a
// batch that is resumed or re-run does not download the same picture
// twice within the TTL (seven days by default). Writes are atomic;
// expired entries are removed on read or by CleanupExpired.
package cache
