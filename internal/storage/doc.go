// Package storage keeps the ring audit log: one record per scheduled action
// that fired, was dropped as stale, or failed at the device.
//
// Drivers:
//   - "file": JSON Lines, append-only, rewritten on prune
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
package storage
