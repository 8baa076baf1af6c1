package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/domain"
)

func init() { gin.SetMode(gin.TestMode) }

func TestConcentrationRatio_SumsTopTenClampedTo100(t *testing.T) {
	holders := make([]domain.HolderBalance, 0, 15)
	for i := 0; i < 15; i++ {
		holders = append(holders, domain.HolderBalance{Owner: "o", SharePct: decimal.NewFromInt(10)})
	}
	ratio := concentrationRatio(holders)
	assert.True(t, ratio.Equal(decimal.NewFromInt(100)))
}

func TestConcentrationRatio_FewHoldersSumsExactly(t *testing.T) {
	holders := []domain.HolderBalance{
		{Owner: "a", SharePct: decimal.NewFromFloat(12.5)},
		{Owner: "b", SharePct: decimal.NewFromFloat(7.5)},
	}
	ratio := concentrationRatio(holders)
	assert.True(t, ratio.Equal(decimal.NewFromInt(20)))
}

type alwaysOKPinger struct{}

func (alwaysOKPinger) Ping(ctx context.Context) error { return nil }

func TestHealth_ReturnsOkWhenDependenciesReachable(t *testing.T) {
	a := &API{db: alwaysOKPinger{}, redis: alwaysOKPinger{}}
	router := gin.New()
	router.GET("/health", a.health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return assert.AnError }

func TestHealth_ReturnsUnhealthyWhenDatabaseUnreachable(t *testing.T) {
	a := &API{db: failingPinger{}, redis: alwaysOKPinger{}}
	router := gin.New()
	router.GET("/health", a.health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIntQuery_FallsBackToDefaultOnInvalidInput(t *testing.T) {
	router := gin.New()
	var got int
	router.GET("/x", func(c *gin.Context) { got = intQuery(c, "page", 7) })

	req := httptest.NewRequest(http.MethodGet, "/x?page=notanumber", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 7, got)
}
