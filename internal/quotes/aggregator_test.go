package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/domain"
)

func TestSelectPair_DropsLowVolumeLaunchPair(t *testing.T) {
	pairs := []rawPair{
		{DexId: "pumpfun", Liquidity: struct{ Usd float64 `json:"usd"` }{Usd: 100}, Volume: struct{ H24 float64 `json:"h24"` }{H24: 50}},
	}
	_, ok := selectPair("mint", pairs)
	assert.False(t, ok)
}

func TestSelectPair_KeepsEstablishedVenueWithoutVolume(t *testing.T) {
	pairs := []rawPair{
		{DexId: "raydium", Liquidity: struct{ Usd float64 `json:"usd"` }{Usd: 600}, Volume: struct{ H24 float64 `json:"h24"` }{H24: 0}},
	}
	chosen, ok := selectPair("mint", pairs)
	require.True(t, ok)
	assert.Equal(t, "raydium", chosen.DexId)
}

func TestSelectPair_PrefersNativeQuotedOverHigherScoringStable(t *testing.T) {
	native := rawPair{DexId: "orca", Liquidity: f(600), Volume: v(200)}
	native.BaseToken.Address = "mint"
	native.QuoteToken.Address = domain.NativeMint

	stable := rawPair{DexId: "raydium", Liquidity: f(100000), Volume: v(50000)}
	stable.BaseToken.Address = "mint"
	stable.QuoteToken.Address = domain.StableMint

	chosen, ok := selectPair("mint", []rawPair{stable, native})
	require.True(t, ok)
	assert.Equal(t, domain.NativeMint, chosen.QuoteToken.Address)
}

func TestSelectPair_BestScoreAmongOthersWhenNoPreferredQuoteSide(t *testing.T) {
	low := rawPair{PairAddress: "low", DexId: "raydium", Liquidity: f(600), Volume: v(100)}
	low.QuoteToken.Address = "some-other-mint"
	high := rawPair{PairAddress: "high", DexId: "raydium", Liquidity: f(50000), Volume: v(20000)}
	high.QuoteToken.Address = "yet-another-mint"

	chosen, ok := selectPair("mint", []rawPair{low, high})
	require.True(t, ok)
	assert.Equal(t, high.PairAddress, chosen.PairAddress)
	assert.Greater(t, high.score(), low.score())
}

func TestScore_LaunchLikePenaltyIsAddedBack(t *testing.T) {
	lowVolLaunch := rawPair{DexId: "pumpfun", Liquidity: f(6000), Volume: v(2000)}
	sameLiquidityEstablished := rawPair{DexId: "raydium", Liquidity: f(6000), Volume: v(2000)}

	assert.Greater(t, lowVolLaunch.score(), sameLiquidityEstablished.score())
}

func f(v float64) struct {
	Usd float64 `json:"usd"`
} {
	return struct {
		Usd float64 `json:"usd"`
	}{Usd: v}
}

func v(val float64) struct {
	H24 float64 `json:"h24"`
} {
	return struct {
		H24 float64 `json:"h24"`
	}{H24: val}
}
