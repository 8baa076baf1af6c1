// Package pricing implements the Pricing Engine (spec §4.G): the
// component that composes supply, native-denominated price and the
// native/USD rate into a PriceSnapshot, persists it transactionally
// and publishes it for the Broadcast Hub. Grounded on the Chain
// Adapter's cache-through fan-in style for the parallel-fetch
// composition in priceOf.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/observability"
	"tokenpulse/internal/quotes"
	"tokenpulse/internal/store"
)

const nativePriceCacheTTL = 5 * time.Second

// minPoolReserveUsd mirrors quotes' threshold for rejecting thin
// fallback pools when deriving a mint's native-denominated price.
const minPoolReserveUsd = 1000

// Validator is the subset of the Token Validator the Pricing Engine
// needs for updateMint's validate-then-purge step.
type Validator interface {
	Validate(ctx context.Context, mint string) error
	PurgeInvalid(ctx context.Context, mint string) error
}

// Engine implements priceOf, updateMint, batchUpdate and currentOf
// (§4.G).
type Engine struct {
	chain      *chain.Adapter
	aggregator quotes.Source
	oracle     *quotes.USDOracle
	validator  Validator
	store      store.Store
	cache      cache.Store
}

// New builds a Pricing Engine.
func New(chainAdapter *chain.Adapter, aggregator quotes.Source, oracle *quotes.USDOracle, tokenValidator Validator, persistentStore store.Store, cacheStore cache.Store) *Engine {
	return &Engine{
		chain:      chainAdapter,
		aggregator: aggregator,
		oracle:     oracle,
		validator:  tokenValidator,
		store:      persistentStore,
		cache:      cacheStore,
	}
}

// PriceOf composes supply, native-denominated price and native/USD
// rate into one PriceSnapshot (§4.G priceOf).
func (e *Engine) PriceOf(ctx context.Context, mint string) (domain.PriceSnapshot, error) {
	type supplyResult struct {
		info domain.TokenInfo
		err  error
	}
	type nativeResult struct {
		price decimal.Decimal
		err   error
	}
	type usdResult struct {
		price decimal.Decimal
		err   error
	}

	supplyCh := make(chan supplyResult, 1)
	nativeCh := make(chan nativeResult, 1)
	usdCh := make(chan usdResult, 1)

	go func() {
		info, err := e.chain.ReadSupply(ctx, mint)
		supplyCh <- supplyResult{info, err}
	}()
	go func() {
		price, err := e.nativePriceForMint(ctx, mint)
		nativeCh <- nativeResult{price, err}
	}()
	go func() {
		price, err := e.oracle.Price(ctx)
		usdCh <- usdResult{price, err}
	}()

	supply, native, usd := <-supplyCh, <-nativeCh, <-usdCh
	if supply.err != nil {
		return domain.PriceSnapshot{}, supply.err
	}
	if native.err != nil {
		return domain.PriceSnapshot{}, native.err
	}
	if usd.err != nil {
		return domain.PriceSnapshot{}, usd.err
	}

	priceUsd := native.price.Mul(usd.price)
	return domain.PriceSnapshot{
		Mint:        mint,
		PriceUsd:    priceUsd,
		PriceNative: native.price,
		MarketCap:   priceUsd.Mul(supply.info.TotalSupply),
		TotalSupply: supply.info.TotalSupply,
		AsOf:        time.Now(),
	}, nil
}

// nativePriceForMint dispatches per §4.G: native mint short-circuits
// to 1, then the Aggregator, then a chain pool fallback, cached up to
// 5s.
func (e *Engine) nativePriceForMint(ctx context.Context, mint string) (decimal.Decimal, error) {
	if mint == domain.NativeMint {
		return decimal.NewFromInt(1), nil
	}

	key := cache.TokenPriceNativeKey(mint)
	if b, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		if v, perr := decimal.NewFromString(string(b)); perr == nil {
			return v, nil
		}
	}

	price, err := e.resolveNativePrice(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}

	_ = e.cache.SetWithTTL(ctx, key, []byte(price.String()), nativePriceCacheTTL)
	return price, nil
}

func (e *Engine) resolveNativePrice(ctx context.Context, mint string) (decimal.Decimal, error) {
	if quote, ok, err := e.aggregator.SingleQuote(ctx, mint); err == nil && ok && quote.PriceNative.IsPositive() {
		return quote.PriceNative, nil
	}

	pools, err := e.chain.FindPoolsForPair(ctx, mint, domain.NativeMint)
	if err != nil {
		return decimal.Zero, apperr.ChainUnavailable(err)
	}

	nativeUsd, err := e.oracle.Price(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	var best, bestReserveUsd decimal.Decimal
	found := false
	for _, pool := range pools {
		reserves, err := e.chain.ReadPoolReserves(ctx, pool.PoolAddr, mint)
		if err != nil {
			continue
		}
		price, quoteReserve, ok := reservePrice(reserves)
		reserveUsd := quoteReserve.Mul(nativeUsd)
		if !ok || reserveUsd.LessThan(decimal.NewFromInt(minPoolReserveUsd)) {
			continue
		}
		if !found || reserveUsd.GreaterThan(bestReserveUsd) {
			best = price
			bestReserveUsd = reserveUsd
			found = true
		}
	}
	if !found {
		return decimal.Zero, apperr.UpstreamUnavailable("pricing", errors.New("no qualifying native-denominated pool"))
	}
	return best, nil
}

func reservePrice(r chain.PoolReserves) (price, quoteReserve decimal.Decimal, ok bool) {
	tokenReserve := r.TokenReserveRaw.Shift(-int32(r.TokenDecimals))
	quoteReserve := r.QuoteReserveRaw.Shift(-int32(r.QuoteDecimals))
	if !tokenReserve.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	return quoteReserve.Div(tokenReserve), quoteReserve, true
}

// UpdateMint validates mint, computes its snapshot, writes it
// transactionally and publishes it (§4.G updateMint). An invalid mint
// is purged and the InvalidMint error is returned for the Scheduler to
// ban and cancel.
func (e *Engine) UpdateMint(ctx context.Context, mint string) error {
	if err := e.validator.Validate(ctx, mint); err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindInvalidMint {
			_ = e.validator.PurgeInvalid(ctx, mint)
			observability.RecordPriceUpdate(err, "invalid_mint")
		} else {
			observability.RecordPriceUpdate(err, "validation")
		}
		return err
	}

	snapshot, err := e.PriceOf(ctx, mint)
	if err != nil {
		observability.RecordPriceUpdate(err, "price_of")
		return err
	}

	if err := e.store.WriteSnapshot(ctx, snapshot); err != nil {
		wrapped := apperr.Persistence(err)
		observability.RecordPriceUpdate(wrapped, "persistence")
		return wrapped
	}

	e.publish(ctx, snapshot)
	observability.RecordPriceUpdate(nil, "")
	return nil
}

func (e *Engine) publish(ctx context.Context, snapshot domain.PriceSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = e.cache.Publish(ctx, cache.PriceUpdateChannel, payload)
}

// BatchUpdate validates-and-purges mints, then batches through the
// Aggregator to amortise upstream calls, falling back per-mint on
// failure while preserving the persist-then-publish invariant per
// mint (§4.G batchUpdate).
func (e *Engine) BatchUpdate(ctx context.Context, mints []string) map[string]error {
	results := make(map[string]error, len(mints))

	valid, invalid := validateBatch(ctx, e.validator, mints)
	for _, mint := range invalid {
		results[mint] = apperr.InvalidMint(mint, "failed batch validation")
	}
	if len(valid) == 0 {
		return results
	}

	quotesByMint, err := e.aggregator.BatchQuote(ctx, valid)
	if err == nil {
		for mint, quote := range quotesByMint {
			if quote.PriceNative.IsPositive() {
				_ = e.cache.SetWithTTL(ctx, cache.TokenPriceNativeKey(mint), []byte(quote.PriceNative.String()), nativePriceCacheTTL)
			}
		}
	}

	for _, mint := range valid {
		results[mint] = e.UpdateMint(ctx, mint)
	}
	return results
}

func validateBatch(ctx context.Context, v Validator, mints []string) (valid, invalid []string) {
	for _, mint := range mints {
		if err := v.Validate(ctx, mint); err != nil {
			if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindInvalidMint {
				_ = v.PurgeInvalid(ctx, mint)
				invalid = append(invalid, mint)
			}
			continue
		}
		valid = append(valid, mint)
	}
	return valid, invalid
}

// CurrentOf reads LatestState for mint, returning nil, nil if absent
// (§4.G currentOf).
func (e *Engine) CurrentOf(ctx context.Context, mint string) (*domain.PriceSnapshot, error) {
	snapshot, err := e.store.GetLatest(ctx, mint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Persistence(err)
	}
	return &snapshot, nil
}
