package chain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
)

// Recognised token program owners (§4.C validateMint ii): two programs
// are acceptable, matching both the legacy and extended token
// programs on a Solana-like chain.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// AMMProgramID is the constant-product AMM program whose accounts
// findPoolsForPair scans.
const AMMProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// Pool account layout offsets (bytes), matching the AMM program's
// fixed-size pool state: baseMint and quoteMint are stored as 32-byte
// public keys immediately after an 8-byte discriminator and flags.
const (
	poolAccountSize   = 752
	poolBaseMintOff   = 8
	poolQuoteMintOff  = 40
	poolBaseVaultOff  = 336
	poolQuoteVaultOff = 368
	mintPubkeyLen     = 32
)

// Adapter implements the Chain Adapter (§4.C) over an RPCClient, with
// cache-through reads for decimals (permanent) and supply (1h) as
// required by readSupply.
type Adapter struct {
	rpc   RPCClient
	cache cache.Store
}

// NewAdapter creates a chain Adapter.
func NewAdapter(rpc RPCClient, store cache.Store) *Adapter {
	return &Adapter{rpc: rpc, cache: store}
}

// ValidateMint confirms the account exists, is owned by a recognised
// token program, and has a readable supply with decimals in [0,18]
// and supply > 0 (§4.C). The native mint is accepted without a
// round-trip.
func (a *Adapter) ValidateMint(ctx context.Context, mint string) error {
	if mint == domain.NativeMint {
		return nil
	}
	if !domain.MintValid(mint) {
		return apperr.InvalidMint(mint, "syntactically invalid")
	}

	info, err := a.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return apperr.ChainUnavailable(err)
	}
	if info == nil {
		return apperr.InvalidMint(mint, "account not found")
	}
	if info.Owner != TokenProgramID && info.Owner != Token2022ProgramID {
		return apperr.InvalidMint(mint, fmt.Sprintf("unrecognised owner %s", info.Owner))
	}

	supply, err := a.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return apperr.ChainUnavailable(err)
	}
	if supply == nil {
		return apperr.InvalidMint(mint, "supply unreadable")
	}
	if supply.Decimals < 0 || supply.Decimals > 18 {
		return apperr.InvalidMint(mint, fmt.Sprintf("decimals %d out of range", supply.Decimals))
	}
	raw, err := decimal.NewFromString(supply.AmountRaw)
	if err != nil {
		return apperr.InvalidMint(mint, "supply unparseable")
	}
	if raw.LessThanOrEqual(decimal.Zero) {
		return apperr.InvalidMint(mint, "supply is zero")
	}

	return nil
}

// ReadSupply returns {raw, decimals}, cached permanently for decimals
// and for 1h for raw supply (§4.C).
func (a *Adapter) ReadSupply(ctx context.Context, mint string) (domain.TokenInfo, error) {
	if mint == domain.NativeMint {
		supply, _ := decimal.NewFromString(domain.NativeMintTotalSupply)
		return domain.TokenInfo{Mint: mint, Decimals: domain.NativeMintDecimals, TotalSupply: supply}, nil
	}

	decimalsKey := cache.TokenDecimalsKey(mint)
	supplyKey := cache.TokenSupplyKey(mint)

	var decimals int
	if b, ok, err := a.cache.Get(ctx, decimalsKey); err == nil && ok {
		fmt.Sscanf(string(b), "%d", &decimals)
	}

	var rawSupply decimal.Decimal
	cachedSupply := false
	if b, ok, err := a.cache.Get(ctx, supplyKey); err == nil && ok {
		if parsed, perr := decimal.NewFromString(string(b)); perr == nil {
			rawSupply = parsed
			cachedSupply = true
		}
	}

	if decimals != 0 && cachedSupply {
		return domain.TokenInfo{Mint: mint, Decimals: decimals, TotalSupply: rawSupply}, nil
	}

	supply, err := a.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return domain.TokenInfo{}, apperr.ChainUnavailable(err)
	}
	if supply == nil {
		return domain.TokenInfo{}, apperr.InvalidMint(mint, "supply unreadable")
	}

	raw, err := decimal.NewFromString(supply.AmountRaw)
	if err != nil {
		return domain.TokenInfo{}, apperr.ChainUnavailable(fmt.Errorf("parse supply: %w", err))
	}

	_ = a.cache.SetPermanent(ctx, decimalsKey, []byte(fmt.Sprintf("%d", supply.Decimals)))
	_ = a.cache.SetWithTTL(ctx, supplyKey, []byte(raw.String()), time.Hour)

	return domain.TokenInfo{Mint: mint, Decimals: supply.Decimals, TotalSupply: raw}, nil
}

// Pool is a discovered AMM pool for a (baseMint, quoteMint) pair.
type Pool struct {
	PoolAddr  string
	BaseMint  string
	QuoteMint string
	BaseVault string
	QuoteVault string
}

// FindPoolsForPair scans AMM program accounts filtered by layout size
// and by x at the base-mint offset, returning the pools whose base mint
// is x and quote mint is y. Pools with y as base and x as quote are not
// returned, because the filter only matches x on the base side. Only
// the mint-pair prefix is fetched via a byte-slice data filter (§4.C).
func (a *Adapter) FindPoolsForPair(ctx context.Context, x, y string) ([]Pool, error) {
	aBytes, err := base58.Decode(x)
	if err != nil {
		return nil, apperr.InvalidMint(x, "not valid base58")
	}

	filters := []ProgramAccountFilter{
		{DataSize: poolAccountSize},
		{Memcmp: &MemcmpFilter{Offset: poolBaseMintOff, Bytes: base58.Encode(aBytes)}},
	}
	slice := &DataSlice{Offset: poolBaseMintOff, Length: 2 * mintPubkeyLen}

	accounts, err := a.rpc.GetProgramAccounts(ctx, AMMProgramID, filters, slice)
	if err != nil {
		return nil, apperr.ChainUnavailable(err)
	}

	var pools []Pool
	for _, acc := range accounts {
		if len(acc.Data) < 2*mintPubkeyLen {
			continue
		}
		baseMint := base58.Encode(acc.Data[0:mintPubkeyLen])
		quoteMint := base58.Encode(acc.Data[mintPubkeyLen : 2*mintPubkeyLen])
		if (baseMint == x && quoteMint == y) || (baseMint == y && quoteMint == x) {
			pools = append(pools, Pool{PoolAddr: acc.Pubkey, BaseMint: baseMint, QuoteMint: quoteMint})
		}
	}
	return pools, nil
}

// PoolReserves is the resolved, decimals-annotated reserve pair for a pool.
type PoolReserves struct {
	TokenReserveRaw decimal.Decimal
	QuoteReserveRaw decimal.Decimal
	TokenDecimals   int
	QuoteDecimals   int
}

// ReadPoolReserves resolves which vault belongs to tokenMint and reads
// both parsed balances in parallel (§4.C).
func (a *Adapter) ReadPoolReserves(ctx context.Context, poolAddr, tokenMint string) (PoolReserves, error) {
	full, err := a.rpc.GetAccountInfo(ctx, poolAddr)
	if err != nil {
		return PoolReserves{}, apperr.ChainUnavailable(err)
	}
	if full == nil || len(full.Data) < poolQuoteVaultOff+mintPubkeyLen {
		return PoolReserves{}, apperr.InvalidMint(poolAddr, "pool account malformed")
	}

	baseMint := base58.Encode(full.Data[poolBaseMintOff:poolBaseMintOff+mintPubkeyLen])
	baseVault := base58.Encode(full.Data[poolBaseVaultOff : poolBaseVaultOff+mintPubkeyLen])
	quoteVault := base58.Encode(full.Data[poolQuoteVaultOff : poolQuoteVaultOff+mintPubkeyLen])

	tokenVault, quoteVaultAddr := baseVault, quoteVault
	if baseMint != tokenMint {
		tokenVault, quoteVaultAddr = quoteVault, baseVault
	}

	type balanceResult struct {
		bal *TokenAccountBalance
		err error
	}
	tokenCh := make(chan balanceResult, 1)
	quoteCh := make(chan balanceResult, 1)

	go func() {
		b, err := a.rpc.GetTokenAccountBalance(ctx, tokenVault)
		tokenCh <- balanceResult{b, err}
	}()
	go func() {
		b, err := a.rpc.GetTokenAccountBalance(ctx, quoteVaultAddr)
		quoteCh <- balanceResult{b, err}
	}()

	tokenRes, quoteRes := <-tokenCh, <-quoteCh
	if tokenRes.err != nil || quoteRes.err != nil {
		return PoolReserves{}, apperr.ChainUnavailable(fmt.Errorf("read vault balances: token=%v quote=%v", tokenRes.err, quoteRes.err))
	}
	if tokenRes.bal == nil || quoteRes.bal == nil {
		return PoolReserves{}, apperr.InvalidMint(poolAddr, "vault balance unreadable")
	}

	tokenRaw, err := decimal.NewFromString(tokenRes.bal.AmountRaw)
	if err != nil {
		return PoolReserves{}, apperr.ChainUnavailable(fmt.Errorf("parse token reserve: %w", err))
	}
	quoteRaw, err := decimal.NewFromString(quoteRes.bal.AmountRaw)
	if err != nil {
		return PoolReserves{}, apperr.ChainUnavailable(fmt.Errorf("parse quote reserve: %w", err))
	}

	return PoolReserves{
		TokenReserveRaw: tokenRaw,
		QuoteReserveRaw: quoteRaw,
		TokenDecimals:   tokenRes.bal.Decimals,
		QuoteDecimals:   quoteRes.bal.Decimals,
	}, nil
}

// ReadTopHolders queries the largest-accounts endpoint and joins
// against supply to compute each holder's share (§4.C).
func (a *Adapter) ReadTopHolders(ctx context.Context, mint string, limit int) ([]domain.HolderBalance, error) {
	info, err := a.ReadSupply(ctx, mint)
	if err != nil {
		return nil, err
	}

	largest, err := a.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return nil, apperr.ChainUnavailable(err)
	}

	sort.Slice(largest, func(i, j int) bool {
		bi, _ := decimal.NewFromString(largest[i].AmountRaw)
		bj, _ := decimal.NewFromString(largest[j].AmountRaw)
		return bi.GreaterThan(bj)
	})
	if limit > 0 && len(largest) > limit {
		largest = largest[:limit]
	}

	holders := make([]domain.HolderBalance, 0, len(largest))
	for _, h := range largest {
		balance, err := decimal.NewFromString(h.AmountRaw)
		if err != nil {
			continue
		}
		var share decimal.Decimal
		if info.TotalSupply.IsPositive() {
			share = balance.Div(info.TotalSupply).Mul(decimal.NewFromInt(100))
		}
		holders = append(holders, domain.HolderBalance{Owner: h.Address, Balance: balance, SharePct: share})
	}
	return holders, nil
}
