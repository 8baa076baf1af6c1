// Package memory provides an in-memory store.Store, used by
// cmd/server when DATABASE_URL is empty and as a fast dependency in
// unit tests, grounded
// on the teacher's internal/storage/memory mutex-guarded map idiom.
package memory

import (
	"context"
	"sort"
	"sync"

	"tokenpulse/internal/domain"
	"tokenpulse/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	latest  map[string]domain.PriceSnapshot
	history map[string][]domain.HistoryEntry
	nextID  int64
}

// NewStore creates a new in-memory Store.
func NewStore() *Store {
	return &Store{
		latest:  make(map[string]domain.PriceSnapshot),
		history: make(map[string][]domain.HistoryEntry),
	}
}

var _ store.Store = (*Store)(nil)

// UpsertLatest replaces the latest row for snapshot.Mint.
func (s *Store) UpsertLatest(_ context.Context, snapshot domain.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[snapshot.Mint] = snapshot
	return nil
}

// GetLatest returns the latest snapshot for mint, or store.ErrNotFound.
func (s *Store) GetLatest(_ context.Context, mint string) (domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[mint]
	if !ok {
		return domain.PriceSnapshot{}, store.ErrNotFound
	}
	return snap, nil
}

// ListLatest returns a page of latest snapshots ordered by AsOf
// descending, plus the total row count.
func (s *Store) ListLatest(_ context.Context, pageOffset, pageLimit int) ([]domain.PriceSnapshot, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.PriceSnapshot, 0, len(s.latest))
	for _, snap := range s.latest {
		all = append(all, snap)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AsOf.After(all[j].AsOf) })

	total := len(all)
	if pageOffset >= total {
		return []domain.PriceSnapshot{}, total, nil
	}
	end := pageOffset + pageLimit
	if end > total {
		end = total
	}
	page := make([]domain.PriceSnapshot, end-pageOffset)
	copy(page, all[pageOffset:end])
	return page, total, nil
}

// PurgeMint deletes the latest row and all history for mint.
func (s *Store) PurgeMint(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, mint)
	delete(s.history, mint)
	return nil
}

// AppendHistory appends one entry, assigning a strictly increasing ID.
func (s *Store) AppendHistory(_ context.Context, snapshot domain.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry := domain.HistoryEntry{
		ID:          s.nextID,
		Mint:        snapshot.Mint,
		PriceUsd:    snapshot.PriceUsd,
		PriceNative: snapshot.PriceNative,
		MarketCap:   snapshot.MarketCap,
		At:          snapshot.AsOf,
	}
	s.history[snapshot.Mint] = append(s.history[snapshot.Mint], entry)
	return nil
}

// HistoryInRange returns entries for mint with At in [from, to]
// (unix millis), ordered ascending by At, capped at capN entries.
func (s *Store) HistoryInRange(_ context.Context, mint string, from, to int64, capN int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[mint]
	filtered := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		ms := e.At.UnixMilli()
		if ms >= from && ms <= to {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].At.Before(filtered[j].At) })
	if capN > 0 && len(filtered) > capN {
		filtered = filtered[:capN]
	}
	return filtered, nil
}

// PurgeMintHistory deletes all history rows for mint.
func (s *Store) PurgeMintHistory(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, mint)
	return nil
}

// WriteSnapshot performs UpsertLatest and AppendHistory; the map-based
// implementation has no partial-failure mode so this is always atomic.
func (s *Store) WriteSnapshot(ctx context.Context, snapshot domain.PriceSnapshot) error {
	if err := s.UpsertLatest(ctx, snapshot); err != nil {
		return err
	}
	return s.AppendHistory(ctx, snapshot)
}
