// Package store implements the Persistent Store (spec §4.B): latest-state
// upsert plus append-only history, transactional where the spec requires
// it. Grounded on the teacher's internal/storage package (ErrNotFound /
// ErrDuplicateKey sentinels, pgx-backed implementation, in-memory twin
// for tests).
package store

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")
