// Package quotes implements the Quote Sources component (spec §4.D):
// market-data providers that return candidate Quotes for a mint, with
// batching, rate limiting and pair selection. Grounded on
// easyweb3-platform's internal/integration providers (Dexscreener,
// GoPlus) for the cache-through HTTP query shape, and on CryptoGo's
// internal/infra.RateLimiter for outbound pacing.
package quotes

import (
	"context"

	"github.com/shopspring/decimal"

	"tokenpulse/internal/domain"
)

// Source models a quote provider as a capability rather than a
// concrete transport, so the Pricing Engine (G) can compose Aggregator
// and Native AMM behind the same interface.
type Source interface {
	// BatchQuote returns a Quote for as many of mints as the provider
	// could resolve; mints absent from the result were not found.
	BatchQuote(ctx context.Context, mints []string) (map[string]domain.Quote, error)

	// SingleQuote returns a Quote for one mint, or ok=false if the
	// provider has nothing for it.
	SingleQuote(ctx context.Context, mint string) (domain.Quote, bool, error)

	// NativePriceUsd returns the current native-coin/USD price as seen
	// by this provider, or ok=false if it cannot derive one.
	NativePriceUsd(ctx context.Context) (decimal.Decimal, bool, error)
}
