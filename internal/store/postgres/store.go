package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tokenpulse/internal/domain"
	"tokenpulse/internal/observability"
	"tokenpulse/internal/store"
)

// Store implements store.Store over PostgreSQL's token_price and
// price_history tables (§6.3), built on the teacher's pgx-based store
// idiom (candidate_store.go's Insert/scan pattern).
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

// UpsertLatest performs a single-statement INSERT ... ON CONFLICT so
// the row always equals exactly one caller's payload, never a blend
// (§4.B).
func (s *Store) UpsertLatest(ctx context.Context, snap domain.PriceSnapshot) error {
	const query = `
		INSERT INTO token_price (mint, price_usd, price_native, market_cap, total_supply, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			price_native = EXCLUDED.price_native,
			market_cap = EXCLUDED.market_cap,
			total_supply = EXCLUDED.total_supply,
			last_updated = EXCLUDED.last_updated
	`
	_, err := s.pool.Exec(ctx, query,
		snap.Mint, snap.PriceUsd.String(), snap.PriceNative.String(),
		snap.MarketCap.String(), snap.TotalSupply.String(), snap.AsOf)
	if err != nil {
		return fmt.Errorf("upsert latest: %w", err)
	}
	return nil
}

// AppendHistory appends one entry; Postgres's BIGSERIAL guarantees a
// strictly increasing id under concurrent appends (§4.B).
func (s *Store) AppendHistory(ctx context.Context, snap domain.PriceSnapshot) error {
	const query = `
		INSERT INTO price_history (mint, price_usd, price_native, market_cap, at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		snap.Mint, snap.PriceUsd.String(), snap.PriceNative.String(), snap.MarketCap.String(), snap.AsOf)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// WriteSnapshot performs UpsertLatest and AppendHistory in one
// transaction: either both or neither take effect (§4.B).
func (s *Store) WriteSnapshot(ctx context.Context, snap domain.PriceSnapshot) (err error) {
	started := time.Now()
	defer func() { observability.RecordDBQuery("write_snapshot", time.Since(started).Seconds(), err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsertQuery = `
		INSERT INTO token_price (mint, price_usd, price_native, market_cap, total_supply, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			price_native = EXCLUDED.price_native,
			market_cap = EXCLUDED.market_cap,
			total_supply = EXCLUDED.total_supply,
			last_updated = EXCLUDED.last_updated
	`
	if _, err := tx.Exec(ctx, upsertQuery,
		snap.Mint, snap.PriceUsd.String(), snap.PriceNative.String(),
		snap.MarketCap.String(), snap.TotalSupply.String(), snap.AsOf); err != nil {
		return fmt.Errorf("upsert latest: %w", err)
	}

	const historyQuery = `
		INSERT INTO price_history (mint, price_usd, price_native, market_cap, at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, historyQuery,
		snap.Mint, snap.PriceUsd.String(), snap.PriceNative.String(), snap.MarketCap.String(), snap.AsOf); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot write: %w", err)
	}
	return nil
}

// GetLatest returns the latest snapshot for mint.
func (s *Store) GetLatest(ctx context.Context, mint string) (_ domain.PriceSnapshot, err error) {
	started := time.Now()
	defer func() { observability.RecordDBQuery("get_latest", time.Since(started).Seconds(), err) }()

	const query = `
		SELECT mint, price_usd, price_native, market_cap, total_supply, last_updated
		FROM token_price WHERE mint = $1
	`
	row := s.pool.QueryRow(ctx, query, mint)
	snap, scanErr := scanSnapshot(row)
	if scanErr != nil {
		if isNotFoundError(scanErr) {
			err = store.ErrNotFound
			return domain.PriceSnapshot{}, err
		}
		err = fmt.Errorf("get latest: %w", scanErr)
		return domain.PriceSnapshot{}, err
	}
	return snap, nil
}

// ListLatest returns a page of latest snapshots ordered by AsOf
// descending, plus the total row count.
func (s *Store) ListLatest(ctx context.Context, pageOffset, pageLimit int) (_ []domain.PriceSnapshot, _ int, err error) {
	started := time.Now()
	defer func() { observability.RecordDBQuery("list_latest", time.Since(started).Seconds(), err) }()

	const countQuery = `SELECT count(*) FROM token_price`
	var total int
	if err := s.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count latest: %w", err)
	}

	const query = `
		SELECT mint, price_usd, price_native, market_cap, total_supply, last_updated
		FROM token_price ORDER BY last_updated DESC
		OFFSET $1 LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, pageOffset, pageLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("list latest: %w", err)
	}
	defer rows.Close()

	var result []domain.PriceSnapshot
	for rows.Next() {
		snap, err := scanSnapshotRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan latest row: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate latest rows: %w", err)
	}

	return result, total, nil
}

// PurgeMint deletes the latest row and all history rows for mint in
// one transaction.
func (s *Store) PurgeMint(ctx context.Context, mint string) (err error) {
	started := time.Now()
	defer func() { observability.RecordDBQuery("purge_mint", time.Since(started).Seconds(), err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM token_price WHERE mint = $1`, mint); err != nil {
		return fmt.Errorf("purge latest: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM price_history WHERE mint = $1`, mint); err != nil {
		return fmt.Errorf("purge history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}

// PurgeMintHistory deletes all history rows for mint.
func (s *Store) PurgeMintHistory(ctx context.Context, mint string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM price_history WHERE mint = $1`, mint); err != nil {
		return fmt.Errorf("purge mint history: %w", err)
	}
	return nil
}

// HistoryInRange returns entries for mint with at in [from, to],
// ordered ascending by at, capped at capN entries (§4.B).
func (s *Store) HistoryInRange(ctx context.Context, mint string, from, to int64, capN int) (_ []domain.HistoryEntry, err error) {
	started := time.Now()
	defer func() { observability.RecordDBQuery("history_in_range", time.Since(started).Seconds(), err) }()

	const query = `
		SELECT id, mint, price_usd, price_native, market_cap, at
		FROM price_history
		WHERE mint = $1 AND at >= $2 AND at <= $3
		ORDER BY at ASC
		LIMIT $4
	`
	rows, err := s.pool.Query(ctx, query, mint, time.UnixMilli(from), time.UnixMilli(to), capN)
	if err != nil {
		return nil, fmt.Errorf("history in range: %w", err)
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var priceUsd, priceNative, marketCap string
		if err := rows.Scan(&e.ID, &e.Mint, &priceUsd, &priceNative, &marketCap, &e.At); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.PriceUsd, _ = decimal.NewFromString(priceUsd)
		e.PriceNative, _ = decimal.NewFromString(priceNative)
		e.MarketCap, _ = decimal.NewFromString(marketCap)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return result, nil
}

func scanSnapshot(row pgx.Row) (domain.PriceSnapshot, error) {
	var snap domain.PriceSnapshot
	var priceUsd, priceNative, marketCap, totalSupply string
	err := row.Scan(&snap.Mint, &priceUsd, &priceNative, &marketCap, &totalSupply, &snap.AsOf)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	snap.PriceUsd, _ = decimal.NewFromString(priceUsd)
	snap.PriceNative, _ = decimal.NewFromString(priceNative)
	snap.MarketCap, _ = decimal.NewFromString(marketCap)
	snap.TotalSupply, _ = decimal.NewFromString(totalSupply)
	return snap, nil
}

func scanSnapshotRows(rows pgx.Rows) (domain.PriceSnapshot, error) {
	var snap domain.PriceSnapshot
	var priceUsd, priceNative, marketCap, totalSupply string
	err := rows.Scan(&snap.Mint, &priceUsd, &priceNative, &marketCap, &totalSupply, &snap.AsOf)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	snap.PriceUsd, _ = decimal.NewFromString(priceUsd)
	snap.PriceNative, _ = decimal.NewFromString(priceNative)
	snap.MarketCap, _ = decimal.NewFromString(marketCap)
	snap.TotalSupply, _ = decimal.NewFromString(totalSupply)
	return snap, nil
}
