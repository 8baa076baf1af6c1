package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenInfo describes a mint's static/slow-changing attributes (§3).
type TokenInfo struct {
	Mint        string
	Name        string // optional, empty when metadata is unavailable
	Symbol      string // optional
	Decimals    int    // 0..18
	TotalSupply decimal.Decimal
}

// Quote is a candidate priced market for a mint, produced by a Quote
// Source (component D) and consumed by the Pricing Engine (component G).
type Quote struct {
	Mint         string
	PriceUsd     decimal.Decimal
	PriceNative  decimal.Decimal
	MarketCap    decimal.Decimal
	LiquidityUsd decimal.Decimal
	Volume24h    decimal.Decimal
	TxnCount24h  int64
	VenueID      string
	PairID       string
	AsOf         time.Time
}

// PriceSnapshot is the unit of broadcast and history (§3).
type PriceSnapshot struct {
	Mint        string          `json:"mint"`
	PriceUsd    decimal.Decimal `json:"priceUsd"`
	PriceNative decimal.Decimal `json:"priceNative"`
	MarketCap   decimal.Decimal `json:"marketCap"`
	TotalSupply decimal.Decimal `json:"totalSupply"`
	AsOf        time.Time       `json:"asOf"`
}

// LatestState is exactly one row per mint (§3). Mint is the primary key.
type LatestState struct {
	Snapshot    PriceSnapshot
	LastUpdated time.Time
}

// HistoryEntry is one append-only row, indexed by (mint, at) (§3).
type HistoryEntry struct {
	ID          int64
	Mint        string
	PriceUsd    decimal.Decimal
	PriceNative decimal.Decimal
	MarketCap   decimal.Decimal
	At          time.Time
}

// HolderBalance is one top-holder entry, computed on demand from the
// Chain Adapter (§3).
type HolderBalance struct {
	Owner     string
	Balance   decimal.Decimal
	SharePct  decimal.Decimal
}

// RiskLevel classifies an individual risk finding.
type RiskLevel string

const (
	RiskLevelInfo   RiskLevel = "info"
	RiskLevelWarn   RiskLevel = "warn"
	RiskLevelDanger RiskLevel = "danger"
)

// RiskOverall is the coarse, derived risk classification (§3).
type RiskOverall string

const (
	RiskOverallLow      RiskOverall = "low"
	RiskOverallMedium   RiskOverall = "medium"
	RiskOverallHigh     RiskOverall = "high"
	RiskOverallCritical RiskOverall = "critical"
)

// RiskFinding is one entry in a RiskReport's risks list.
type RiskFinding struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Score       int       `json:"score"`
	Level       RiskLevel `json:"level"`
}

// RiskSummary counts findings by level.
type RiskSummary struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// RiskReport is the normalised output of the Risk Scorer (§3, §4.E).
type RiskReport struct {
	Mint             string        `json:"mint"`
	ScoreNormalised  int           `json:"scoreNormalised"`
	Rugged           bool          `json:"rugged"`
	Risks            []RiskFinding `json:"risks"`
	Summary          RiskSummary   `json:"summary"`
	Overall          RiskOverall   `json:"overall"`
}

// DeriveOverall computes the Overall classification per §3:
// rugged ⇒ critical; score≤20 ⇒ high; score≤50 ⇒ medium; else low.
func DeriveOverall(rugged bool, scoreNormalised int) RiskOverall {
	switch {
	case rugged:
		return RiskOverallCritical
	case scoreNormalised <= 20:
		return RiskOverallHigh
	case scoreNormalised <= 50:
		return RiskOverallMedium
	default:
		return RiskOverallLow
	}
}

// SummariseRisks counts risks by level into a RiskSummary.
func SummariseRisks(risks []RiskFinding) RiskSummary {
	s := RiskSummary{Total: len(risks)}
	for _, r := range risks {
		switch r.Level {
		case RiskLevelDanger:
			s.High++
		case RiskLevelWarn:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}
