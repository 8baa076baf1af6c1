package quotes

import (
	"context"

	"github.com/shopspring/decimal"

	"tokenpulse/internal/domain"
)

// FallbackSource tries primary first and falls through to secondary
// only when primary is unavailable or returns nothing usable (§4.D.2:
// the Native AMM API provider is a lighter secondary source used only
// when the Aggregator is unavailable or returns nothing usable).
type FallbackSource struct {
	primary   Source
	secondary Source
}

// NewFallbackSource composes primary and secondary into one Source.
func NewFallbackSource(primary, secondary Source) *FallbackSource {
	return &FallbackSource{primary: primary, secondary: secondary}
}

var _ Source = (*FallbackSource)(nil)

func (f *FallbackSource) BatchQuote(ctx context.Context, mints []string) (map[string]domain.Quote, error) {
	quotes, err := f.primary.BatchQuote(ctx, mints)
	if err != nil || len(quotes) == 0 {
		return f.secondary.BatchQuote(ctx, mints)
	}

	missing := make([]string, 0, len(mints))
	for _, m := range mints {
		if _, ok := quotes[m]; !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return quotes, nil
	}
	fallbackQuotes, err := f.secondary.BatchQuote(ctx, missing)
	if err != nil {
		return quotes, nil
	}
	for mint, q := range fallbackQuotes {
		quotes[mint] = q
	}
	return quotes, nil
}

func (f *FallbackSource) SingleQuote(ctx context.Context, mint string) (domain.Quote, bool, error) {
	quote, ok, err := f.primary.SingleQuote(ctx, mint)
	if err == nil && ok {
		return quote, true, nil
	}
	return f.secondary.SingleQuote(ctx, mint)
}

func (f *FallbackSource) NativePriceUsd(ctx context.Context) (decimal.Decimal, bool, error) {
	return f.primary.NativePriceUsd(ctx)
}
