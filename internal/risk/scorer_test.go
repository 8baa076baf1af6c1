package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/domain"
)

func TestBuildReport_HoneypotIsRuggedAndCritical(t *testing.T) {
	report := buildReport("mint", rawTokenSecurity{IsHoneypot: "1", IsOpenSource: "1"})
	require.NotNil(t, report)
	assert.True(t, report.Rugged)
	assert.Equal(t, domain.RiskOverallCritical, report.Overall)
	assert.Equal(t, 60, report.ScoreNormalised)
}

func TestBuildReport_CleanTokenHasNoFindings(t *testing.T) {
	report := buildReport("mint", rawTokenSecurity{IsOpenSource: "1"})
	assert.Empty(t, report.Risks)
	assert.Equal(t, 100, report.ScoreNormalised)
	assert.Equal(t, domain.RiskOverallLow, report.Overall)
}

func TestBuildReport_ScoreNeverGoesNegative(t *testing.T) {
	report := buildReport("mint", rawTokenSecurity{
		IsHoneypot:           "1",
		IsMintable:           "1",
		OwnerChangeBalance:   "1",
		Selfdestruct:         "1",
		CannotSellAll:        "1",
		HiddenOwner:          "1",
		CanTakeBackOwnership: "1",
		TransferPausable:     "1",
		IsBlacklisted:        "1",
	})
	assert.Equal(t, 0, report.ScoreNormalised)
}
