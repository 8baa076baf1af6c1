package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/store"
)

type stubValidator struct {
	err    error
	purged []string
}

func (v *stubValidator) Validate(ctx context.Context, mint string) error { return v.err }
func (v *stubValidator) PurgeInvalid(ctx context.Context, mint string) error {
	v.purged = append(v.purged, mint)
	return nil
}

func TestUpdateMint_InvalidMintPurgesAndReturnsError(t *testing.T) {
	validator := &stubValidator{err: apperr.InvalidMint("mintA", "bad owner")}
	e := &Engine{validator: validator}

	err := e.UpdateMint(context.Background(), "mintA")
	require.Error(t, err)
	assert.Equal(t, []string{"mintA"}, validator.purged)
}

func TestReservePrice_RejectsZeroTokenReserve(t *testing.T) {
	_, _, ok := reservePrice(poolReserves(0, 1000, 6, 9))
	assert.False(t, ok)
}

func TestReservePrice_ComputesRatioAcrossDecimals(t *testing.T) {
	price, reserveUsd, ok := reservePrice(poolReserves(1_000_000_000, 2_000_000, 9, 6))
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromFloat(2)))
	assert.True(t, reserveUsd.Equal(decimal.NewFromFloat(2)))
}

func poolReserves(tokenRaw, quoteRaw int64, tokenDecimals, quoteDecimals int) chain.PoolReserves {
	return chain.PoolReserves{
		TokenReserveRaw: decimal.NewFromInt(tokenRaw),
		QuoteReserveRaw: decimal.NewFromInt(quoteRaw),
		TokenDecimals:   tokenDecimals,
		QuoteDecimals:   quoteDecimals,
	}
}

// notFoundStore implements store.Store, returning ErrNotFound from
// GetLatest; every other method panics if called, which none of the
// tests below trigger.
type notFoundStore struct{ store.Store }

func (notFoundStore) GetLatest(ctx context.Context, mint string) (domain.PriceSnapshot, error) {
	return domain.PriceSnapshot{}, store.ErrNotFound
}

func TestCurrentOf_ReturnsNilWithoutErrorWhenAbsent(t *testing.T) {
	e := &Engine{store: notFoundStore{}}
	snap, err := e.CurrentOf(context.Background(), "mintA")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
