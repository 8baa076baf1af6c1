package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/store/memory"
)

type stubChain struct {
	calls int
	err   error
}

func (s *stubChain) ValidateMint(ctx context.Context, mint string) error {
	s.calls++
	return s.err
}

func TestValidate_AcceptsNativeMintWithoutChainCall(t *testing.T) {
	chain := &stubChain{}
	v := New(chain, cache.NewMemoryStore(), memory.NewStore())

	require.NoError(t, v.Validate(context.Background(), domain.NativeMint))
	assert.Equal(t, 0, chain.calls)
}

func TestValidate_RejectsSyntacticallyInvalidMintWithoutChainCall(t *testing.T) {
	chain := &stubChain{}
	v := New(chain, cache.NewMemoryStore(), memory.NewStore())

	err := v.Validate(context.Background(), "too-short")
	require.Error(t, err)
	assert.Equal(t, 0, chain.calls)
}

func TestValidate_CachesValidVerdictAndSkipsSecondChainCall(t *testing.T) {
	chain := &stubChain{}
	v := New(chain, cache.NewMemoryStore(), memory.NewStore())
	mint := "11111111111111111111111111111111"

	require.NoError(t, v.Validate(context.Background(), mint))
	require.NoError(t, v.Validate(context.Background(), mint))
	assert.Equal(t, 1, chain.calls)
}

func TestValidate_CachesInvalidVerdictAndSkipsSecondChainCall(t *testing.T) {
	chain := &stubChain{err: apperr.InvalidMint("mint", "owner mismatch")}
	v := New(chain, cache.NewMemoryStore(), memory.NewStore())
	mint := "11111111111111111111111111111111"

	err1 := v.Validate(context.Background(), mint)
	err2 := v.Validate(context.Background(), mint)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, 1, chain.calls)
}

func TestValidate_TransientErrorIsNotCached(t *testing.T) {
	chain := &stubChain{err: apperr.ChainUnavailable(errors.New("timeout"))}
	v := New(chain, cache.NewMemoryStore(), memory.NewStore())
	mint := "11111111111111111111111111111111"

	require.Error(t, v.Validate(context.Background(), mint))
	require.Error(t, v.Validate(context.Background(), mint))
	assert.Equal(t, 2, chain.calls)
}

func TestValidateBatch_PurgesInvalidMints(t *testing.T) {
	chain := &stubChain{err: apperr.InvalidMint("mint", "bad owner")}
	st := memory.NewStore()
	mint := "11111111111111111111111111111111"
	require.NoError(t, st.WriteSnapshot(context.Background(), domain.PriceSnapshot{Mint: mint}))

	v := New(chain, cache.NewMemoryStore(), st)
	result := v.ValidateBatch(context.Background(), []string{mint})

	assert.Equal(t, []string{mint}, result.Invalid)
	assert.Empty(t, result.Valid)
	_, err := st.GetLatest(context.Background(), mint)
	assert.Error(t, err)
}
