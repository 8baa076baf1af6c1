package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
)

// fetchJSON performs a cache-through GET, grounded on the same shape
// as quotes.fetchJSON: a cache hit short-circuits the request, and a
// 429 response surfaces as apperr.Throttled so a rate limit is never
// mistaken for the "mint not indexed" null outcome.
func fetchJSON(ctx context.Context, client *http.Client, store cache.Store, key, u string) (json.RawMessage, error) {
	if store != nil {
		if b, found, err := store.Get(ctx, key); err == nil && found && json.Valid(b) {
			return json.RawMessage(b), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("risk_report", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("risk_report", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, apperr.UpstreamUnavailable("risk_report", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 30
		if h := resp.Header.Get("Retry-After"); h != "" {
			fmt.Sscanf(h, "%d", &retryAfter)
		}
		return nil, apperr.Throttled("risk_report", retryAfter)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.UpstreamUnavailable("risk_report", fmt.Errorf("http %d: %s", resp.StatusCode, string(body)))
	}
	if !json.Valid(body) {
		return nil, apperr.UpstreamUnavailable("risk_report", fmt.Errorf("non-json response"))
	}

	if store != nil {
		_ = store.SetWithTTL(ctx, key, body, ttl)
	}
	return json.RawMessage(body), nil
}
