package quotes

import (
	"bytes"
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/cache"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/domain"
)

// fakeRPC implements chain.RPCClient with two native/stable pools of
// different reserve sizes, so fromPool's largest-reserve selection
// (§4.G step 3) can be exercised without a live chain.
type fakeRPC struct {
	accounts []chain.ProgramAccount
	infos    map[string]*chain.AccountInfo
	balances map[string]*chain.TokenAccountBalance
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, pubkey string) (*chain.AccountInfo, error) {
	return f.infos[pubkey], nil
}

func (f *fakeRPC) GetTokenSupply(ctx context.Context, mint string) (*chain.TokenSupply, error) {
	return nil, nil
}

func (f *fakeRPC) GetTokenAccountBalance(ctx context.Context, pubkey string) (*chain.TokenAccountBalance, error) {
	return f.balances[pubkey], nil
}

func (f *fakeRPC) GetProgramAccounts(ctx context.Context, programID string, filters []chain.ProgramAccountFilter, dataSlice *chain.DataSlice) ([]chain.ProgramAccount, error) {
	return f.accounts, nil
}

func (f *fakeRPC) GetTokenLargestAccounts(ctx context.Context, mint string) ([]chain.TokenLargestAccount, error) {
	return nil, nil
}

// fakePool holds the raw 32-byte pubkeys backing one pool account, so
// both the sliced find-pools view and the full reserve-read view stay
// consistent with each other.
type fakePool struct {
	addr       string
	baseMint   []byte
	quoteMint  []byte
	baseVault  []byte
	quoteVault []byte
}

func (p fakePool) fullData() []byte {
	data := make([]byte, 752)
	copy(data[8:40], p.baseMint)
	copy(data[40:72], p.quoteMint)
	copy(data[336:368], p.baseVault)
	copy(data[368:400], p.quoteVault)
	return data
}

func fixedPubkey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestUSDOracle_FromPool_SelectsLargestReservePool(t *testing.T) {
	ctx := context.Background()

	nativeMint, err := base58.Decode(domain.NativeMint)
	require.NoError(t, err)
	stableMint, err := base58.Decode(domain.StableMint)
	require.NoError(t, err)

	small := fakePool{
		addr:       "smallPool",
		baseMint:   nativeMint,
		quoteMint:  stableMint,
		baseVault:  fixedPubkey(1),
		quoteVault: fixedPubkey(2),
	}
	large := fakePool{
		addr:       "largePool",
		baseMint:   nativeMint,
		quoteMint:  stableMint,
		baseVault:  fixedPubkey(3),
		quoteVault: fixedPubkey(4),
	}

	smallData, largeData := small.fullData(), large.fullData()
	rpc := &fakeRPC{
		accounts: []chain.ProgramAccount{
			{Pubkey: small.addr, Data: smallData[8:72]},
			{Pubkey: large.addr, Data: largeData[8:72]},
		},
		infos: map[string]*chain.AccountInfo{
			small.addr: {Data: smallData},
			large.addr: {Data: largeData},
		},
		balances: map[string]*chain.TokenAccountBalance{
			// small pool: price = 2000/10 = 200 per native, $2000 reserve —
			// above the minimum qualifying reserve but dwarfed by the large pool.
			base58.Encode(small.baseVault):  {AmountRaw: "10000000000", Decimals: 9},
			base58.Encode(small.quoteVault): {AmountRaw: "2000000000", Decimals: 6},
			// large pool: price = 150000/1000 = 150 per native, $150000 reserve.
			base58.Encode(large.baseVault):  {AmountRaw: "1000000000000", Decimals: 9},
			base58.Encode(large.quoteVault): {AmountRaw: "150000000000", Decimals: 6},
		},
	}

	adapter := chain.NewAdapter(rpc, cache.NewMemoryStore())
	oracle := NewUSDOracle(adapter, cache.NewMemoryStore())

	price, err := oracle.fromPool(ctx)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)), "expected the large pool's price (150) to win, got %s", price)
}
