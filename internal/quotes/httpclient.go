package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/observability"
)

// fetchJSON performs a cache-through GET against u, grounded on
// Dexscreener.get/GoPlus.get: a cache hit short-circuits the request;
// a 429 response surfaces as apperr.Throttled so callers can back off
// without poisoning the cache with an error page.
func fetchJSON(ctx context.Context, client *http.Client, store cache.Store, source, key, u string, ttl time.Duration) (json.RawMessage, error) {
	if store != nil && key != "" {
		if b, found, err := store.Get(ctx, key); err == nil && found && json.Valid(b) {
			observability.DefaultMetrics.QuoteCacheHits.WithLabelValues(source).Inc()
			return json.RawMessage(b), nil
		}
	}

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "request")
		return nil, apperr.UpstreamUnavailable(source, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "transport")
		return nil, apperr.UpstreamUnavailable(source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "read_body")
		return nil, apperr.UpstreamUnavailable(source, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 30
		if h := resp.Header.Get("Retry-After"); h != "" {
			fmt.Sscanf(h, "%d", &retryAfter)
		}
		observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "throttled")
		return nil, apperr.Throttled(source, retryAfter)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "http_status")
		return nil, apperr.UpstreamUnavailable(source, fmt.Errorf("http %d: %s", resp.StatusCode, string(body)))
	}
	if !json.Valid(body) {
		observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "bad_json")
		return nil, apperr.UpstreamUnavailable(source, fmt.Errorf("non-json response"))
	}

	if store != nil && key != "" {
		_ = store.SetWithTTL(ctx, key, body, ttl)
	}
	observability.RecordQuoteFetch(source, time.Since(started).Seconds(), "")
	return json.RawMessage(body), nil
}
