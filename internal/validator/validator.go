// Package validator implements the Token Validator (spec §4.F): the
// pipeline every mint passes through before entering the Scheduler or
// being served by the Read API, grounded on the Chain Adapter's own
// cache-through style (internal/chain.Adapter.ReadSupply).
package validator

import (
	"context"
	"time"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/observability"
	"tokenpulse/internal/store"
)

const validationTTL = time.Hour

const (
	verdictValid   = "valid"
	verdictInvalid = "invalid"
)

// ChainValidator is the subset of chain.Adapter the Validator needs.
type ChainValidator interface {
	ValidateMint(ctx context.Context, mint string) error
}

// Validator runs the §4.F pipeline.
type Validator struct {
	chain ChainValidator
	cache cache.Store
	store store.Store
}

// New builds a Validator.
func New(chainValidator ChainValidator, cacheStore cache.Store, persistentStore store.Store) *Validator {
	return &Validator{chain: chainValidator, cache: cacheStore, store: persistentStore}
}

// Validate runs the full pipeline for one mint: native fast path,
// syntax check, cache lookup, chain fallback. A cached verdict within
// the TTL is honoured without re-contacting the chain.
func (v *Validator) Validate(ctx context.Context, mint string) error {
	if mint == domain.NativeMint {
		return nil
	}

	if !domain.MintValid(mint) {
		return apperr.InvalidMint(mint, "syntactically invalid")
	}

	key := cache.ValidationKey(mint)
	if b, ok, err := v.cache.Get(ctx, key); err == nil && ok {
		switch string(b) {
		case verdictValid:
			observability.RecordValidation(verdictValid)
			return nil
		case verdictInvalid:
			observability.RecordValidation(verdictInvalid)
			return apperr.InvalidMint(mint, "cached invalid verdict")
		}
	}

	err := v.chain.ValidateMint(ctx, mint)
	if err != nil && !isInvalidKind(err) {
		// Transient chain failure: do not cache a verdict either way.
		return err
	}

	verdict := verdictValid
	if err != nil {
		verdict = verdictInvalid
	}
	_ = v.cache.SetWithTTL(ctx, key, []byte(verdict), validationTTL)
	observability.RecordValidation(verdict)

	return err
}

func isInvalidKind(err error) bool {
	kind, ok := apperr.KindOf(err)
	return ok && kind == apperr.KindInvalidMint
}

// PurgeInvalid removes all state for an invalid mint: persistent rows
// plus every cache key the Validator is documented to own (§4.F.5).
func (v *Validator) PurgeInvalid(ctx context.Context, mint string) error {
	var firstErr error
	if err := v.store.PurgeMint(ctx, mint); err != nil {
		firstErr = apperr.Persistence(err)
	}
	if err := v.cache.Delete(ctx, cache.ValidatorOwnedPrefixes(mint)...); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// BatchResult is the output of ValidateBatch.
type BatchResult struct {
	Valid   []string
	Invalid []string
}

// ValidateBatch drains mints through Validate, purging each invalid
// mint as a side effect (§4.F.6).
func (v *Validator) ValidateBatch(ctx context.Context, mints []string) BatchResult {
	var result BatchResult
	for _, mint := range mints {
		if err := v.Validate(ctx, mint); err != nil {
			if isInvalidKind(err) {
				_ = v.PurgeInvalid(ctx, mint)
				result.Invalid = append(result.Invalid, mint)
			}
			continue
		}
		result.Valid = append(result.Valid, mint)
	}
	return result
}
