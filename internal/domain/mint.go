// Package domain holds the core types shared across the ingestion and
// fan-out engine: mints, quotes, price snapshots, holder balances and
// risk reports.
package domain

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// NativeMint is the distinguished wrapped native-coin mint. It is
// accepted by the validator without a chain round-trip and carries a
// documented decimals/supply pair instead of reading them on-chain.
const NativeMint = "So11111111111111111111111111111111111111112"

// NativeMintDecimals is the hard-coded decimals for the native mint.
const NativeMintDecimals = 9

// NativeMintTotalSupply is the documented total supply for the native
// mint, expressed in whole units (not raw/lamports).
const NativeMintTotalSupply = "511616946.09"

// StableMint is the canonical USD-pegged stable mint used as a
// fallback quote side in pair selection (§4.D.1 rule 4) and as the
// fallback pool side when deriving the native/USD price (§4.G).
const StableMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// MintValid returns whether m has a legal base58 alphabet, a length in
// the syntactic range the chain program accepts, and decodes to a
// point on the ed25519 curve (every real account address is a
// keypair's public key, not an arbitrary 32-byte string). It performs
// no network I/O; see chain.Adapter.ValidateMint for the full
// pipeline.
func MintValid(m string) bool {
	if len(m) < 32 || len(m) > 44 {
		return false
	}
	for _, r := range m {
		if !isBase58Rune(r) {
			return false
		}
	}

	decoded, err := base58.Decode(m)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}

// base58 alphabet used by Solana-style chains (Bitcoin alphabet,
// excludes 0, O, I, l).
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func isBase58Rune(r rune) bool {
	for _, c := range base58Alphabet {
		if c == r {
			return true
		}
	}
	return false
}
