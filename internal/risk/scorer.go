// Package risk implements the Risk Scorer (spec §4.E): an external
// rugcheck-style call cached for 5 minutes, where a null report is a
// normal outcome (mint not indexed) and a rate limit must surface as
// a transient error rather than null. Grounded on easyweb3-platform's
// internal/integration.GoPlus for the cache-through query shape and
// its token_security wire fields.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
)

const ttl = 5 * time.Minute

// Scorer calls a GoPlus-style token_security endpoint and normalises
// the response into a domain.RiskReport.
type Scorer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   cache.Store
}

// NewScorer builds a Scorer against baseURL, authenticating with
// apiKey when non-empty.
func NewScorer(baseURL, apiKey string, store cache.Store) *Scorer {
	return &Scorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   store,
	}
}

type tokenSecurityResponse struct {
	Code    int                         `json:"code"`
	Message string                      `json:"message"`
	Result  map[string]rawTokenSecurity `json:"result"`
}

type rawTokenSecurity struct {
	IsOpenSource          string `json:"is_open_source"`
	IsMintable            string `json:"is_mintable"`
	CanTakeBackOwnership  string `json:"can_take_back_ownership"`
	OwnerChangeBalance    string `json:"owner_change_balance"`
	HiddenOwner           string `json:"hidden_owner"`
	Selfdestruct          string `json:"selfdestruct"`
	IsHoneypot            string `json:"is_honeypot"`
	TransferPausable      string `json:"transfer_pausable"`
	CannotSellAll         string `json:"cannot_sell_all"`
	IsBlacklisted         string `json:"is_blacklisted"`
	HolderCount           string `json:"holder_count"`
}

func isTrue(s string) bool { return s == "1" || strings.EqualFold(s, "true") }

// findings enumerates the checks this service derives from GoPlus's
// response, each carrying the score penalty applied when triggered.
var findings = []struct {
	name        string
	description string
	level       domain.RiskLevel
	penalty     int
	triggered   func(rawTokenSecurity) bool
}{
	{"honeypot", "token cannot be resold after purchase", domain.RiskLevelDanger, 40, func(r rawTokenSecurity) bool { return isTrue(r.IsHoneypot) }},
	{"mintable", "supply can be increased by the owner", domain.RiskLevelDanger, 25, func(r rawTokenSecurity) bool { return isTrue(r.IsMintable) }},
	{"owner_change_balance", "owner can arbitrarily change holder balances", domain.RiskLevelDanger, 25, func(r rawTokenSecurity) bool { return isTrue(r.OwnerChangeBalance) }},
	{"selfdestruct", "contract can be self-destructed", domain.RiskLevelDanger, 20, func(r rawTokenSecurity) bool { return isTrue(r.Selfdestruct) }},
	{"cannot_sell_all", "holders cannot sell their full balance", domain.RiskLevelDanger, 20, func(r rawTokenSecurity) bool { return isTrue(r.CannotSellAll) }},
	{"hidden_owner", "contract owner is hidden", domain.RiskLevelWarn, 10, func(r rawTokenSecurity) bool { return isTrue(r.HiddenOwner) }},
	{"can_take_back_ownership", "ownership can be reclaimed after renouncement", domain.RiskLevelWarn, 10, func(r rawTokenSecurity) bool { return isTrue(r.CanTakeBackOwnership) }},
	{"transfer_pausable", "transfers can be paused by the owner", domain.RiskLevelWarn, 10, func(r rawTokenSecurity) bool { return isTrue(r.TransferPausable) }},
	{"is_blacklisted", "contract implements a transfer blacklist", domain.RiskLevelWarn, 5, func(r rawTokenSecurity) bool { return isTrue(r.IsBlacklisted) }},
	{"closed_source", "contract source is not verified", domain.RiskLevelInfo, 5, func(r rawTokenSecurity) bool { return !isTrue(r.IsOpenSource) }},
}

// Report returns a normalised RiskReport for mint, or nil if the
// upstream does not index it (a normal outcome, not an error).
func (s *Scorer) Report(ctx context.Context, mint string) (*domain.RiskReport, error) {
	u := fmt.Sprintf("%s/api/v1/token_security/solana?contract_addresses=%s", s.baseURL, url.QueryEscape(mint))
	if s.apiKey != "" {
		u += "&api_key=" + url.QueryEscape(s.apiKey)
	}

	raw, err := fetchJSON(ctx, s.client, s.cache, cache.RugcheckKey(mint), u)
	if err != nil {
		return nil, err
	}

	var resp tokenSecurityResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperr.UpstreamUnavailable("risk_report", err)
	}

	security, ok := resp.Result[strings.ToLower(mint)]
	if !ok {
		security, ok = resp.Result[mint]
	}
	if !ok {
		return nil, nil
	}

	return buildReport(mint, security), nil
}

func buildReport(mint string, security rawTokenSecurity) *domain.RiskReport {
	score := 100
	var risks []domain.RiskFinding
	for _, f := range findings {
		if !f.triggered(security) {
			continue
		}
		risks = append(risks, domain.RiskFinding{
			Name:        f.name,
			Description: f.description,
			Score:       f.penalty,
			Level:       f.level,
		})
		score -= f.penalty
	}
	if score < 0 {
		score = 0
	}

	rugged := isTrue(security.IsHoneypot)
	return &domain.RiskReport{
		Mint:            mint,
		ScoreNormalised: score,
		Rugged:          rugged,
		Risks:           risks,
		Summary:         domain.SummariseRisks(risks),
		Overall:         domain.DeriveOverall(rugged, score),
	}
}
