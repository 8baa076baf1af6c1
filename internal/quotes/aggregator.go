package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
)

// maxBatchSize is the largest number of mints the aggregator accepts
// in one outbound call (§4.D.1).
const maxBatchSize = 30

// establishedVenues waive the volume requirement (§4.D.1 rule 2).
var establishedVenues = map[string]bool{
	"raydium": true,
	"orca":    true,
	"jupiter": true,
	"meteora": true,
}

// launchVenues are suspected low-liquidity launch platforms subject
// to the stricter filter of rule 1 and the scoring penalty of rule 5.
var launchVenues = map[string]bool{
	"pumpfun":   true,
	"pumpswap":  true,
	"launchlab": true,
	"moonshot":  true,
}

// Aggregator is the primary Quote Source (§4.D.1): a batched,
// rate-limited HTTP provider with pair-selection and scoring.
// Grounded on easyweb3-platform's Dexscreener integration for its
// query/cache shape, generalised to batch requests and to the pair
// filtering and scoring rules this service defines.
type Aggregator struct {
	baseURL  string
	client   *http.Client
	cache    cache.Store
	oracle   *USDOracle
	throttle *Throttle
	ttl      time.Duration
}

// NewAggregator builds an Aggregator provider. ttl is the per-mint
// positive cache TTL and MUST be within [5s, 60s] (§4.D.1).
func NewAggregator(baseURL string, store cache.Store, oracle *USDOracle, ttl time.Duration) *Aggregator {
	if ttl < 5*time.Second {
		ttl = 5 * time.Second
	}
	if ttl > 60*time.Second {
		ttl = 60 * time.Second
	}
	return &Aggregator{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    store,
		oracle:   oracle,
		throttle: NewThrottle(200 * time.Millisecond),
		ttl:      ttl,
	}
}

var _ Source = (*Aggregator)(nil)

type rawPair struct {
	PairAddress string `json:"pairAddress"`
	DexId       string `json:"dexId"`
	BaseToken   struct {
		Address string `json:"address"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
	} `json:"quoteToken"`
	PriceUsd    string `json:"priceUsd"`
	PriceNative string `json:"priceNative"`
	Liquidity   struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Txns struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
}

type pairsResponse struct {
	Pairs []rawPair `json:"pairs"`
}

func (p rawPair) txnCount() int64 { return p.Txns.H24.Buys + p.Txns.H24.Sells }

// quoteMintOf returns the side of the pair that is not mint, used to
// classify a pair's quote side for preference rule 4.
func (p rawPair) quoteMintOf(mint string) string {
	if p.BaseToken.Address == mint {
		return p.QuoteToken.Address
	}
	return p.BaseToken.Address
}

func (p rawPair) isLaunchLike() bool {
	return launchVenues[strings.ToLower(p.DexId)]
}

func (p rawPair) isEstablished() bool {
	return establishedVenues[strings.ToLower(p.DexId)]
}

// passesFilter applies §4.D.1 rules 1-3.
func (p rawPair) passesFilter() bool {
	liquidity, volume := p.Liquidity.Usd, p.Volume.H24
	switch {
	case p.isLaunchLike():
		return volume > 1000 && liquidity > 5000
	case p.isEstablished():
		return liquidity >= 500
	default:
		return liquidity >= 500 && volume >= 100
	}
}

// score implements §4.D.1 rule 5's literal weighted formula, including
// the counterintuitive −penalty term: penalty is itself negative for
// launch-like pairs, so subtracting it adds to the score.
func (p rawPair) score() float64 {
	liquidity, volume, txns := p.Liquidity.Usd, p.Volume.H24, float64(p.txnCount())

	var established float64
	if p.isEstablished() {
		established = 1
	}

	var penalty float64
	switch {
	case p.isLaunchLike() && volume > 100000:
		penalty = -10000
	case p.isLaunchLike():
		penalty = -100000
	}

	var volLiqBonus float64
	if liquidity > 0 && volume/liquidity > 0.1 {
		volLiqBonus = 15000
	}
	var txnBonus float64
	if txns > 50 {
		txnBonus = 5000
	}

	return 0.3*liquidity + 0.4*volume + 0.3*(200*txns) + 50000*established - penalty + volLiqBonus + txnBonus
}

// selectPair applies the full §4.D.1 algorithm (rules 1-4) to pairs
// already known to belong to mint, returning the chosen pair.
func selectPair(mint string, pairs []rawPair) (rawPair, bool) {
	var filtered []rawPair
	for _, p := range pairs {
		if p.passesFilter() {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return rawPair{}, false
	}

	var nativeQuoted, stableQuoted []rawPair
	for _, p := range filtered {
		switch p.quoteMintOf(mint) {
		case domain.NativeMint:
			nativeQuoted = append(nativeQuoted, p)
		case domain.StableMint:
			stableQuoted = append(stableQuoted, p)
		}
	}

	pool := filtered
	if len(nativeQuoted) > 0 {
		pool = nativeQuoted
	} else if len(stableQuoted) > 0 {
		pool = stableQuoted
	}

	best := pool[0]
	bestScore := best.score()
	for _, p := range pool[1:] {
		if s := p.score(); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best, true
}

// toQuote converts the chosen pair into a domain.Quote, deriving
// priceNative from priceUsd/nativeUsd when the provider omitted it
// (§4.D.1 rule 6).
func (a *Aggregator) toQuote(ctx context.Context, mint string, p rawPair) domain.Quote {
	priceUsd, _ := decimal.NewFromString(p.PriceUsd)
	priceNative, err := decimal.NewFromString(p.PriceNative)
	if err != nil || !priceNative.IsPositive() {
		if nativeUsd, oerr := a.oracle.Price(ctx); oerr == nil && nativeUsd.IsPositive() {
			priceNative = priceUsd.Div(nativeUsd)
		}
	}

	return domain.Quote{
		Mint:         mint,
		PriceUsd:     priceUsd,
		PriceNative:  priceNative,
		LiquidityUsd: decimal.NewFromFloat(p.Liquidity.Usd),
		Volume24h:    decimal.NewFromFloat(p.Volume.H24),
		TxnCount24h:  p.txnCount(),
		VenueID:      p.DexId,
		PairID:       p.PairAddress,
		AsOf:         time.Now(),
	}
}

// BatchQuote fetches up to maxBatchSize mints per outbound call,
// chunking larger requests and respecting the 200ms throttle floor
// between each (§4.D.1).
func (a *Aggregator) BatchQuote(ctx context.Context, mints []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote)
	for start := 0; start < len(mints); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(mints) {
			end = len(mints)
		}
		chunk := mints[start:end]

		pairsByMint, err := a.fetchPairs(ctx, chunk)
		if err != nil {
			return out, err
		}
		for _, mint := range chunk {
			if chosen, ok := selectPair(mint, pairsByMint[mint]); ok {
				out[mint] = a.toQuote(ctx, mint, chosen)
			}
		}
	}
	return out, nil
}

// SingleQuote fetches one mint.
func (a *Aggregator) SingleQuote(ctx context.Context, mint string) (domain.Quote, bool, error) {
	pairsByMint, err := a.fetchPairs(ctx, []string{mint})
	if err != nil {
		return domain.Quote{}, false, err
	}
	chosen, ok := selectPair(mint, pairsByMint[mint])
	if !ok {
		return domain.Quote{}, false, nil
	}
	return a.toQuote(ctx, mint, chosen), true, nil
}

// NativePriceUsd delegates to the shared USDOracle.
func (a *Aggregator) NativePriceUsd(ctx context.Context) (decimal.Decimal, bool, error) {
	price, err := a.oracle.Price(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

func (a *Aggregator) fetchPairs(ctx context.Context, mints []string) (map[string][]rawPair, error) {
	if err := a.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	joined := strings.Join(mints, ",")
	u := fmt.Sprintf("%s/tokens/%s", a.baseURL, url.PathEscape(joined))
	key := cache.QuoteKey("aggregator", joined)

	raw, err := fetchJSON(ctx, a.client, a.cache, "aggregator", key, u, a.ttl)
	if err != nil {
		if retryAfter, ok := apperr.RetryAfter(err); ok {
			a.throttle.Penalize(time.Duration(retryAfter) * time.Second)
		}
		return nil, err
	}

	var resp pairsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperr.UpstreamUnavailable("aggregator", err)
	}

	byMint := make(map[string][]rawPair)
	for _, p := range resp.Pairs {
		for _, mint := range mints {
			if p.BaseToken.Address == mint || p.QuoteToken.Address == mint {
				byMint[mint] = append(byMint[mint], p)
			}
		}
	}
	return byMint, nil
}
