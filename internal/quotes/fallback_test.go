package quotes

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/domain"
)

type stubSource struct {
	quote domain.Quote
	ok    bool
	err   error
}

func (s *stubSource) BatchQuote(ctx context.Context, mints []string) (map[string]domain.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.ok {
		return map[string]domain.Quote{}, nil
	}
	out := make(map[string]domain.Quote, len(mints))
	for _, m := range mints {
		out[m] = s.quote
	}
	return out, nil
}

func (s *stubSource) SingleQuote(ctx context.Context, mint string) (domain.Quote, bool, error) {
	return s.quote, s.ok, s.err
}

func (s *stubSource) NativePriceUsd(ctx context.Context) (decimal.Decimal, bool, error) {
	return decimal.NewFromInt(150), true, nil
}

func TestFallbackSource_SingleQuote_FallsThroughWhenPrimaryMisses(t *testing.T) {
	primary := &stubSource{ok: false}
	secondary := &stubSource{ok: true, quote: domain.Quote{Mint: "mintA"}}
	f := NewFallbackSource(primary, secondary)

	q, ok, err := f.SingleQuote(context.Background(), "mintA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mintA", q.Mint)
}

func TestFallbackSource_SingleQuote_UsesPrimaryWhenUsable(t *testing.T) {
	primary := &stubSource{ok: true, quote: domain.Quote{Mint: "primary"}}
	secondary := &stubSource{ok: true, quote: domain.Quote{Mint: "secondary"}}
	f := NewFallbackSource(primary, secondary)

	q, ok, err := f.SingleQuote(context.Background(), "mintA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "primary", q.Mint)
}

func TestFallbackSource_BatchQuote_FillsGapsFromSecondary(t *testing.T) {
	primary := &stubSource{ok: true, quote: domain.Quote{Mint: "mintA"}}
	secondary := &stubSource{ok: true, quote: domain.Quote{Mint: "mintB"}}
	primaryPartial := &partialBatchSource{base: primary, only: "mintA"}
	f := NewFallbackSource(primaryPartial, secondary)

	quotes, err := f.BatchQuote(context.Background(), []string{"mintA", "mintB"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
}

func TestFallbackSource_BatchQuote_FallsThroughOnPrimaryError(t *testing.T) {
	primary := &stubSource{err: errors.New("boom")}
	secondary := &stubSource{ok: true, quote: domain.Quote{Mint: "mintA"}}
	f := NewFallbackSource(primary, secondary)

	quotes, err := f.BatchQuote(context.Background(), []string{"mintA"})
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

type partialBatchSource struct {
	base Source
	only string
}

func (p *partialBatchSource) BatchQuote(ctx context.Context, mints []string) (map[string]domain.Quote, error) {
	full, err := p.base.BatchQuote(ctx, mints)
	if err != nil {
		return nil, err
	}
	out := map[string]domain.Quote{}
	if q, ok := full[p.only]; ok {
		out[p.only] = q
	}
	return out, nil
}

func (p *partialBatchSource) SingleQuote(ctx context.Context, mint string) (domain.Quote, bool, error) {
	return p.base.SingleQuote(ctx, mint)
}

func (p *partialBatchSource) NativePriceUsd(ctx context.Context) (decimal.Decimal, bool, error) {
	return p.base.NativePriceUsd(ctx)
}
