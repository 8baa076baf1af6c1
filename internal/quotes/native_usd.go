package quotes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tokenpulse/internal/cache"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/domain"
)

// fallbackNativeUsd is the documented last-resort constant used when
// no native/stable pool can be read (§4.G nativeUsdPrice).
const fallbackNativeUsd = "150"

// minPoolReserveUsd is the minimum USD-equivalent reserve a candidate
// pool must clear to be considered (§4.G nativePriceForMint step 3).
const minPoolReserveUsd = 1000

// USDOracle derives the native-coin/USD price from an on-chain
// native/stable pool, caching the result up to 30s (§4.G). It is the
// single owner of cache.NativeUSDPriceKey.
type USDOracle struct {
	chain *chain.Adapter
	cache cache.Store
	ttl   time.Duration
}

// NewUSDOracle builds a USDOracle reading pools through chainAdapter.
func NewUSDOracle(chainAdapter *chain.Adapter, store cache.Store) *USDOracle {
	return &USDOracle{chain: chainAdapter, cache: store, ttl: 30 * time.Second}
}

// Price returns the native/USD price, cached up to 30s, falling back
// to a documented constant if no qualifying pool can be read.
func (o *USDOracle) Price(ctx context.Context) (decimal.Decimal, error) {
	if b, ok, err := o.cache.Get(ctx, cache.NativeUSDPriceKey); err == nil && ok {
		if v, perr := decimal.NewFromString(string(b)); perr == nil {
			return v, nil
		}
	}

	price, err := o.fromPool(ctx)
	if err != nil || price.IsZero() {
		price, _ = decimal.NewFromString(fallbackNativeUsd)
	}

	_ = o.cache.SetWithTTL(ctx, cache.NativeUSDPriceKey, []byte(price.String()), o.ttl)
	return price, nil
}

func (o *USDOracle) fromPool(ctx context.Context) (decimal.Decimal, error) {
	pools, err := o.chain.FindPoolsForPair(ctx, domain.NativeMint, domain.StableMint)
	if err != nil {
		return decimal.Zero, err
	}
	if len(pools) == 0 {
		return decimal.Zero, nil
	}

	var best, bestReserveUsd decimal.Decimal
	found := false
	for _, pool := range pools {
		reserves, err := o.chain.ReadPoolReserves(ctx, pool.PoolAddr, domain.NativeMint)
		if err != nil {
			continue
		}
		price, reserveUsd, ok := priceFromReserves(reserves)
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
		return decimal.Zero, nil
	}
	return best, nil
}

// priceFromReserves computes (quoteReserve/10^quoteDecimals) /
// (tokenReserve/10^tokenDecimals) and the quote-side USD-equivalent
// reserve used to rank candidate pools (§4.G step 3).
func priceFromReserves(r chain.PoolReserves) (price, reserveUsd decimal.Decimal, ok bool) {
	tokenReserve := r.TokenReserveRaw.Shift(-int32(r.TokenDecimals))
	quoteReserve := r.QuoteReserveRaw.Shift(-int32(r.QuoteDecimals))
	if !tokenReserve.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	price = quoteReserve.Div(tokenReserve)
	return price, quoteReserve, true
}
