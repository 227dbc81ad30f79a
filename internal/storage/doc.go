// Package storage persists the reminder record set.
//
// Store holds the canonical records in memory and rewrites the complete
// snapshot through a Backend (file, sqlite or memory) on every mutation.
// Snapshots from older releases are migrated record by record on Load, and
// Reconcile rewrites one-shot reminders that came due while the process was
// down.
package storage
