package store

import (
	"context"

	"tokenpulse/internal/domain"
)

// LatestStore provides latest-state storage for mints (§4.B).
type LatestStore interface {
	// UpsertLatest atomically inserts or replaces the latest row for
	// mint. Concurrent upserts for the same mint leave the row equal
	// to exactly one caller's payload, never a partial blend.
	UpsertLatest(ctx context.Context, snapshot domain.PriceSnapshot) error

	// GetLatest returns the latest snapshot for mint, or ErrNotFound.
	GetLatest(ctx context.Context, mint string) (domain.PriceSnapshot, error)

	// ListLatest returns a page of latest snapshots ordered by AsOf
	// descending, plus the total row count.
	ListLatest(ctx context.Context, pageOffset, pageLimit int) ([]domain.PriceSnapshot, int, error)

	// PurgeMint deletes the latest row for mint, if any, together with
	// all of its history rows.
	PurgeMint(ctx context.Context, mint string) error
}

// HistoryStore provides append-only history storage for mints (§4.B).
type HistoryStore interface {
	// AppendHistory appends one entry; ID is strictly increasing under
	// concurrent appends.
	AppendHistory(ctx context.Context, snapshot domain.PriceSnapshot) error

	// HistoryInRange returns entries for mint with at in [from, to],
	// ordered ascending by at, capped at cap entries.
	HistoryInRange(ctx context.Context, mint string, from, to int64, cap int) ([]domain.HistoryEntry, error)

	// PurgeMintHistory deletes all history rows for mint.
	PurgeMintHistory(ctx context.Context, mint string) error
}

// Store composes LatestStore and HistoryStore and adds the
// transactional write the Pricing Engine requires: upsertLatest and
// appendHistory must commit together or not at all (§4.B).
type Store interface {
	LatestStore
	HistoryStore

	// WriteSnapshot performs UpsertLatest and AppendHistory within one
	// transaction.
	WriteSnapshot(ctx context.Context, snapshot domain.PriceSnapshot) error

	// PurgeMint deletes latest and all history for mint atomically.
	PurgeMint(ctx context.Context, mint string) error
}
