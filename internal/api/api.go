// Package api implements the Read API (spec §4.J, §6.1): gin handlers
// serving paginated latest prices, comprehensive per-mint metrics, top
// holders and bounded history windows, plus health/metrics/dashboard
// endpoints. Grounded on easyweb3-platform's integration handlers for
// the parallel-fetch composition style and on the teacher's
// observability package for the health/metrics shape.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/observability"
	"tokenpulse/internal/risk"
	"tokenpulse/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	defaultHoldersLimit = 10
	maxHoldersLimit     = 100

	defaultWindow = "1h"
	historyCap    = 1000

	topHoldersTTL = 5 * time.Minute
)

var windowDurations = map[string]time.Duration{
	"1m": time.Minute,
	"5m": 5 * time.Minute,
	"1h": time.Hour,
}

// PricingProvider is the subset of the Pricing Engine the Read API
// needs.
type PricingProvider interface {
	CurrentOf(ctx context.Context, mint string) (*domain.PriceSnapshot, error)
	UpdateMint(ctx context.Context, mint string) error
}

// SchedulerEnroller auto-enrols a mint the first time it is queried
// with no LatestState (§4.J comprehensive).
type SchedulerEnroller interface {
	Enrol(ctx context.Context, mint string) error
}

// DBPinger backs /health; both the database and the cache pinger use it.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// API bundles every dependency the Read API's handlers need.
type API struct {
	store     store.Store
	chain     *chain.Adapter
	pricing   PricingProvider
	risk      *risk.Scorer
	scheduler SchedulerEnroller
	cache     cache.Store
	db        DBPinger
	redis     DBPinger
	log       *logrus.Entry

	startedAt time.Time
}

// New builds an API.
func New(persistentStore store.Store, chainAdapter *chain.Adapter, pricing PricingProvider, riskScorer *risk.Scorer, scheduler SchedulerEnroller, cacheStore cache.Store, db, redis DBPinger, log *logrus.Entry) *API {
	return &API{
		store:     persistentStore,
		chain:     chainAdapter,
		pricing:   pricing,
		risk:      riskScorer,
		scheduler: scheduler,
		cache:     cacheStore,
		db:        db,
		redis:     redis,
		log:       log,
		startedAt: time.Now(),
	}
}

// metricsMiddleware records request duration and count per route and
// status, grounded on the same promauto vectors the rest of the
// service uses for outbound calls.
func metricsMiddleware(c *gin.Context) {
	started := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := strconv.Itoa(c.Writer.Status())
	observability.DefaultMetrics.HTTPRequestDuration.WithLabelValues(route, status).Observe(time.Since(started).Seconds())
	observability.DefaultMetrics.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}

// RegisterRoutes wires every §6.1 route onto r.
func (a *API) RegisterRoutes(r *gin.Engine) {
	r.Use(metricsMiddleware)

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/dashboard/info", a.dashboardInfo)

	tokens := r.Group("/api/tokens")
	tokens.GET("", a.listLatest)
	tokens.GET("/:mint/metrics", a.comprehensive)
	tokens.GET("/:mint/holders/top", a.topHolders)
	tokens.GET("/:mint/history", a.history)
}

func jsonError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case apperr.KindBadRequest, apperr.KindInvalidMint:
		return http.StatusBadRequest
	case apperr.KindThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func (a *API) health(c *gin.Context) {
	status := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	dbOK := a.db == nil || a.db.Ping(ctx) == nil
	redisOK := a.redis == nil || a.redis.Ping(ctx) == nil

	status["database"] = dbOK
	status["redis"] = redisOK

	if !dbOK || !redisOK {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     "dependency unreachable",
			"database":  dbOK,
			"redis":     redisOK,
			"timestamp": time.Now().UTC(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) dashboardInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "tokenpulse",
		"description": "real-time SPL token price and risk analytics",
		"wsPath":      "/ws",
		"apiPrefix":   "/api",
	})
}

func (a *API) listLatest(c *gin.Context) {
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", defaultPageLimit)
	if page < 1 || limit < 1 || limit > maxPageLimit {
		jsonError(c, http.StatusBadRequest, apperr.BadRequest("page must be >=1 and limit must be in [1,100]"))
		return
	}

	snapshots, total, err := a.store.ListLatest(c.Request.Context(), (page-1)*limit, limit)
	if err != nil {
		jsonError(c, statusFor(apperr.Persistence(err)), apperr.Persistence(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": snapshots,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

type comprehensiveResponse struct {
	Mint               string             `json:"mint"`
	Name               string             `json:"name"`
	Symbol             string             `json:"symbol"`
	TotalSupply        decimal.Decimal    `json:"totalSupply"`
	PriceUsd           decimal.Decimal    `json:"priceUsd"`
	PriceNative        decimal.Decimal    `json:"priceNative"`
	MarketCap          decimal.Decimal    `json:"marketCap"`
	ConcentrationRatio decimal.Decimal    `json:"concentrationRatio"`
	LastUpdated        time.Time          `json:"lastUpdated"`
	Risk               *domain.RiskReport `json:"risk,omitempty"`
}

func (a *API) comprehensive(c *gin.Context) {
	mint := c.Param("mint")
	window := c.DefaultQuery("window", defaultWindow)
	if _, ok := windowDurations[window]; !ok {
		jsonError(c, http.StatusBadRequest, apperr.BadRequest("window must be one of 1m, 5m, 1h"))
		return
	}

	ctx := c.Request.Context()

	snapshot, err := a.pricing.CurrentOf(ctx, mint)
	if err != nil {
		jsonError(c, statusFor(err), err)
		return
	}
	if snapshot == nil {
		if err := a.scheduler.Enrol(ctx, mint); err != nil {
			jsonError(c, statusFor(err), err)
			return
		}
		if err := a.pricing.UpdateMint(ctx, mint); err != nil {
			jsonError(c, statusFor(err), err)
			return
		}
		snapshot, err = a.pricing.CurrentOf(ctx, mint)
		if err != nil {
			jsonError(c, statusFor(err), err)
			return
		}
	}

	type infoResult struct {
		info domain.TokenInfo
		err  error
	}
	type holdersResult struct {
		holders []domain.HolderBalance
		err     error
	}
	type riskResult struct {
		report *domain.RiskReport
		err    error
	}

	infoCh := make(chan infoResult, 1)
	holdersCh := make(chan holdersResult, 1)
	riskCh := make(chan riskResult, 1)

	go func() {
		info, err := a.chain.ReadSupply(ctx, mint)
		infoCh <- infoResult{info, err}
	}()
	go func() {
		holders, err := a.chain.ReadTopHolders(ctx, mint, 10)
		holdersCh <- holdersResult{holders, err}
	}()
	go func() {
		report, err := a.risk.Report(ctx, mint)
		riskCh <- riskResult{report, err}
	}()

	info, holders, riskReport := <-infoCh, <-holdersCh, <-riskCh

	if info.err != nil {
		jsonError(c, statusFor(info.err), info.err)
		return
	}

	resp := comprehensiveResponse{
		Mint:        mint,
		Name:        info.info.Name,
		Symbol:      info.info.Symbol,
		TotalSupply: snapshot.TotalSupply,
		PriceUsd:    snapshot.PriceUsd,
		PriceNative: snapshot.PriceNative,
		MarketCap:   snapshot.MarketCap,
		LastUpdated: snapshot.AsOf,
	}

	if holders.err == nil {
		resp.ConcentrationRatio = concentrationRatio(holders.holders)
	}
	if riskReport.err == nil {
		resp.Risk = riskReport.report
	}

	c.JSON(http.StatusOK, resp)
}

func concentrationRatio(holders []domain.HolderBalance) decimal.Decimal {
	sorted := make([]domain.HolderBalance, len(holders))
	copy(sorted, holders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SharePct.GreaterThan(sorted[j].SharePct) })

	top := sorted
	if len(top) > 10 {
		top = top[:10]
	}
	total := decimal.Zero
	for _, h := range top {
		total = total.Add(h.SharePct)
	}
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return total
}

func (a *API) topHolders(c *gin.Context) {
	mint := c.Param("mint")
	limit := intQuery(c, "limit", defaultHoldersLimit)
	if limit < 1 || limit > maxHoldersLimit {
		jsonError(c, http.StatusBadRequest, apperr.BadRequest("limit must be in [1,100]"))
		return
	}

	ctx := c.Request.Context()
	key := cache.TopHoldersKey(mint, limit)
	if b, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var holders []domain.HolderBalance
		if json.Unmarshal(b, &holders) == nil {
			c.JSON(http.StatusOK, gin.H{"data": holders, "total": len(holders), "limit": limit})
			return
		}
	}

	holders, err := a.chain.ReadTopHolders(ctx, mint, limit)
	if err != nil {
		jsonError(c, statusFor(err), err)
		return
	}
	if b, err := json.Marshal(holders); err == nil {
		_ = a.cache.SetWithTTL(ctx, key, b, topHoldersTTL)
	}
	c.JSON(http.StatusOK, gin.H{"data": holders, "total": len(holders), "limit": limit})
}

func (a *API) history(c *gin.Context) {
	mint := c.Param("mint")
	window := c.DefaultQuery("window", defaultWindow)
	duration, ok := windowDurations[window]
	if !ok {
		jsonError(c, http.StatusBadRequest, apperr.BadRequest("window must be one of 1m, 5m, 1h"))
		return
	}

	now := time.Now()
	from := now.Add(-duration).UnixMilli()
	to := now.UnixMilli()

	entries, err := a.store.HistoryInRange(c.Request.Context(), mint, from, to, historyCap)
	if err != nil {
		jsonError(c, statusFor(apperr.Persistence(err)), apperr.Persistence(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "window": window, "total": len(entries)})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
