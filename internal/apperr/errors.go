// Package apperr defines the typed error taxonomy used across the
// ingestion and fan-out engine (spec §7), grounded on the teacher's
// storage.ErrNotFound/ErrDuplicateKey sentinel style, generalised to
// wrap per-kind context the way pgconn.PgError does for Postgres.
package apperr

import (
	"errors"
	"fmt"
)

// Kind discriminates error categories so callers (the Scheduler, the
// HTTP layer) can branch without string inspection.
type Kind string

const (
	// KindInvalidMint is fatal for a mint in the current attempt:
	// triggers ban-and-remove in the Scheduler; surfaces to clients as
	// subscription_error{code:"INVALID_TOKEN_MINT"}.
	KindInvalidMint Kind = "invalid_mint"
	// KindChainUnavailable is a transient failure talking to the chain.
	KindChainUnavailable Kind = "chain_unavailable"
	// KindUpstreamUnavailable is a transient failure talking to a named
	// upstream data source (aggregator, native AMM API, risk report).
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	// KindThrottled signals a source-level rate limit; callers should
	// pause outbound calls to that source for at least the returned
	// RetryAfter.
	KindThrottled Kind = "throttled"
	// KindPersistence wraps a failure writing to the Persistent Store.
	KindPersistence Kind = "persistence"
	// KindBadRequest is a REST input validation failure (HTTP 400).
	KindBadRequest Kind = "bad_request"
)

// Error is the common shape for all typed errors in this taxonomy.
type Error struct {
	Kind   Kind
	Reason string
	Source string // populated for UpstreamUnavailable/Throttled
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Source != "" && e.Reason != "":
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Source, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is implements matching against the Kind-only sentinels below so
// callers can write errors.Is(err, apperr.ErrInvalidMint).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// InvalidMint builds a KindInvalidMint error with the given reason.
func InvalidMint(mint, reason string) error {
	return &Error{Kind: KindInvalidMint, Reason: fmt.Sprintf("mint %s: %s", mint, reason)}
}

// ChainUnavailable wraps a transient chain RPC failure.
func ChainUnavailable(err error) error {
	return &Error{Kind: KindChainUnavailable, Err: err}
}

// UpstreamUnavailable wraps a transient failure from a named source.
func UpstreamUnavailable(source string, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Source: source, Err: err}
}

// Throttled signals a rate limit from a named source with an optional
// retry-after hint.
type ThrottledError struct {
	Base              Error
	RetryAfterSeconds int
}

func (t *ThrottledError) Error() string { return t.Base.Error() }
func (t *ThrottledError) Unwrap() error { return &t.Base }
func (t *ThrottledError) Is(target error) bool { return t.Base.Is(target) }

// Throttled builds a KindThrottled error.
func Throttled(source string, retryAfterSeconds int) error {
	return &ThrottledError{
		Base:              Error{Kind: KindThrottled, Source: source},
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// Persistence wraps a Persistent Store failure.
func Persistence(err error) error {
	return &Error{Kind: KindPersistence, Err: err}
}

// BadRequest builds a KindBadRequest error for REST input validation.
func BadRequest(reason string) error {
	return &Error{Kind: KindBadRequest, Reason: reason}
}

// Sentinels usable with errors.Is for Kind-only matching.
var (
	ErrInvalidMint        = &Error{Kind: KindInvalidMint}
	ErrChainUnavailable   = &Error{Kind: KindChainUnavailable}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrThrottled          = &Error{Kind: KindThrottled}
	ErrPersistence        = &Error{Kind: KindPersistence}
	ErrBadRequest         = &Error{Kind: KindBadRequest}
)

// KindOf extracts the Kind from err, if it (or something it wraps) is
// an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// RetryAfter extracts the retry-after hint from a throttled error, if any.
func RetryAfter(err error) (int, bool) {
	var t *ThrottledError
	if errors.As(err, &t) {
		return t.RetryAfterSeconds, true
	}
	return 0, false
}
