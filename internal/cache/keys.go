package cache

import "fmt"

// Key conventions (spec §6.4). Each prefix has a single conceptual
// owner so the shared store never needs cross-component locking.

// ValidationKey is owned by the Token Validator (F).
func ValidationKey(mint string) string { return fmt.Sprintf("validation:%s", mint) }

// InvalidTokenKey is owned by the Scheduler (H)'s ban list.
func InvalidTokenKey(mint string) string { return fmt.Sprintf("invalid_token:%s", mint) }

// TokenInfoKey caches TokenInfo lookups.
func TokenInfoKey(mint string) string { return fmt.Sprintf("token_info:%s", mint) }

// TokenSupplyKey caches raw supply reads (1h TTL per §4.C).
func TokenSupplyKey(mint string) string { return fmt.Sprintf("token_supply:%s", mint) }

// TokenDecimalsKey caches decimals reads (permanent per §4.C).
func TokenDecimalsKey(mint string) string { return fmt.Sprintf("token_decimals:%s", mint) }

// TokenPriceNativeKey caches the short-lived native-denominated price
// used by the Pricing Engine (G).
func TokenPriceNativeKey(mint string) string { return fmt.Sprintf("token_price_native:%s", mint) }

// QuoteKey caches a provider's quote for a mint (owned by D).
func QuoteKey(provider, mint string) string { return fmt.Sprintf("quote:%s:%s", provider, mint) }

// NativeUSDPriceKey caches the native/USD price (owned by G).
const NativeUSDPriceKey = "native_usd_price"

// PoolKey caches a discovered pool for the mint pair (a, b); the key
// depends on argument order.
func PoolKey(a, b string) string { return fmt.Sprintf("pool:%s:%s", a, b) }

// RugcheckKey caches a risk report (owned by E).
func RugcheckKey(mint string) string { return fmt.Sprintf("rugcheck:%s", mint) }

// TopHoldersKey caches a top-holders page (owned by J).
func TopHoldersKey(mint string, limit int) string {
	return fmt.Sprintf("top_holders:%s:%d", mint, limit)
}

// PriceUpdateChannel is the pub/sub channel owned by G→Hub (I).
const PriceUpdateChannel = "price_update"

// ValidatorOwnedPrefixes are the exact cache keys purgeInvalid (§4.F.5)
// deletes for an invalid mint; they are not used as scan prefixes.
func ValidatorOwnedPrefixes(mint string) []string {
	return []string{
		ValidationKey(mint),
		TokenInfoKey(mint),
		TokenSupplyKey(mint),
		TokenDecimalsKey(mint),
		TokenPriceNativeKey(mint),
		QuoteKey("aggregator", mint),
		QuoteKey("native_amm", mint),
		RugcheckKey(mint),
	}
}
