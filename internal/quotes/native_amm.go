package quotes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tokenpulse/internal/cache"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/domain"
)

// NativeAMM is the secondary Quote Source (§4.D.2): a single-pool
// lookup against (mint, native), falling back to (mint, stable), used
// only when the Aggregator is unavailable or returns nothing usable.
type NativeAMM struct {
	chain  *chain.Adapter
	cache  cache.Store
	oracle *USDOracle
	ttl    time.Duration
}

// NewNativeAMM builds a NativeAMM provider.
func NewNativeAMM(chainAdapter *chain.Adapter, store cache.Store, oracle *USDOracle) *NativeAMM {
	return &NativeAMM{chain: chainAdapter, cache: store, oracle: oracle, ttl: 30 * time.Second}
}

var _ Source = (*NativeAMM)(nil)

// SingleQuote resolves one pool for (mint, native) and, on miss, for
// (mint, stable).
func (n *NativeAMM) SingleQuote(ctx context.Context, mint string) (domain.Quote, bool, error) {
	if quote, ok, err := n.quoteAgainst(ctx, mint, domain.NativeMint, true); ok || err != nil {
		return quote, ok, err
	}
	return n.quoteAgainst(ctx, mint, domain.StableMint, false)
}

func (n *NativeAMM) quoteAgainst(ctx context.Context, mint, against string, againstIsNative bool) (domain.Quote, bool, error) {
	pools, err := n.chain.FindPoolsForPair(ctx, mint, against)
	if err != nil {
		return domain.Quote{}, false, err
	}
	if len(pools) == 0 {
		return domain.Quote{}, false, nil
	}
	pool := pools[0]

	reserves, err := n.chain.ReadPoolReserves(ctx, pool.PoolAddr, mint)
	if err != nil {
		return domain.Quote{}, false, err
	}
	priceAgainst, _, ok := priceFromReserves(reserves)
	if !ok || !priceAgainst.IsPositive() {
		return domain.Quote{}, false, nil
	}

	var priceNative, priceUsd decimal.Decimal
	if againstIsNative {
		priceNative = priceAgainst
		if nativeUsd, err := n.oracle.Price(ctx); err == nil {
			priceUsd = priceNative.Mul(nativeUsd)
		}
	} else {
		priceUsd = priceAgainst
		if nativeUsd, err := n.oracle.Price(ctx); err == nil && nativeUsd.IsPositive() {
			priceNative = priceUsd.Div(nativeUsd)
		}
	}

	return domain.Quote{
		Mint:        mint,
		PriceUsd:    priceUsd,
		PriceNative: priceNative,
		VenueID:     "native_amm",
		PairID:      pool.PoolAddr,
		AsOf:        time.Now(),
	}, true, nil
}

// BatchQuote resolves each mint independently; the Native AMM has no
// multi-mint endpoint to batch against.
func (n *NativeAMM) BatchQuote(ctx context.Context, mints []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote)
	for _, mint := range mints {
		quote, ok, err := n.SingleQuote(ctx, mint)
		if err != nil {
			continue
		}
		if ok {
			out[mint] = quote
		}
	}
	return out, nil
}

// NativePriceUsd delegates to the shared USDOracle.
func (n *NativeAMM) NativePriceUsd(ctx context.Context) (decimal.Decimal, bool, error) {
	price, err := n.oracle.Price(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}
