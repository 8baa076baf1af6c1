// Package main wires every tokenpulse component into a single HTTP +
// WebSocket server: Cache Store, Persistent Store, Chain Adapter,
// Quote Sources, Risk Scorer, Token Validator, Pricing Engine,
// Scheduler, Broadcast Hub, Read API and Control Plane. Grounded on
// the teacher's signal/graceful-shutdown pattern in its own
// cmd/server/main.go.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tokenpulse/internal/api"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/chain"
	"tokenpulse/internal/config"
	"tokenpulse/internal/hub"
	"tokenpulse/internal/logging"
	"tokenpulse/internal/pricing"
	"tokenpulse/internal/quotes"
	"tokenpulse/internal/risk"
	"tokenpulse/internal/scheduler"
	"tokenpulse/internal/store"
	"tokenpulse/internal/store/memory"
	"tokenpulse/internal/store/postgres"
	"tokenpulse/internal/validator"
	"tokenpulse/internal/ws"
)

func main() {
	log := logging.New("server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheStore, closeCache, err := buildCacheStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to build cache store")
	}
	defer closeCache()

	persistentStore, pgPool, closeStore, err := buildPersistentStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build persistent store")
	}
	defer closeStore()

	rpcClient := chain.NewHTTPClient(chainEndpoint(cfg))
	chainAdapter := chain.NewAdapter(rpcClient, cacheStore)

	oracle := quotes.NewUSDOracle(chainAdapter, cacheStore)
	aggregator := quotes.NewAggregator(cfg.AggregatorURL, cacheStore, oracle, cfg.AggregatorTTL)
	nativeAMM := quotes.NewNativeAMM(chainAdapter, cacheStore, oracle)
	quoteSource := quotes.NewFallbackSource(aggregator, nativeAMM)

	riskScorer := risk.NewScorer(cfg.RiskReportURL, cfg.RiskAPIKey, cacheStore)

	mintValidator := validator.New(chainAdapter, cacheStore, persistentStore)

	pricingEngine := pricing.New(chainAdapter, quoteSource, oracle, mintValidator, persistentStore, cacheStore)

	sched := scheduler.New(pricingEngine, mintValidator, cacheStore, persistentStore, logging.New("scheduler"), time.Duration(cfg.PollMs)*time.Millisecond, cfg.WorkerCount)
	sched.Start(ctx)
	if err := sched.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("scheduler bootstrap failed")
	}

	broadcastHub := hub.New(mintValidator, pricingEngine, sched, cacheStore, logging.New("hub"))
	if err := broadcastHub.Run(ctx); err != nil {
		log.WithError(err).Fatal("failed to start broadcast hub")
	}

	wsHandler := ws.New(broadcastHub, logging.New("ws"))

	var dbPinger api.DBPinger
	if pgPool != nil {
		dbPinger = pgPool
	}
	var redisPinger api.DBPinger
	if rs, ok := cacheStore.(*cache.RedisStore); ok {
		redisPinger = rs
	}

	readAPI := api.New(persistentStore, chainAdapter, pricingEngine, riskScorer, sched, cacheStore, dbPinger, redisPinger, logging.New("api"))

	router := gin.New()
	router.Use(gin.Recovery())
	readAPI.RegisterRoutes(router)
	router.GET("/ws", wsHandler.HandleWebSocket)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("tokenpulse listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("received shutdown signal")
	case err := <-serverErr:
		log.WithError(err).Error("http server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Warn("received second signal, forcing immediate shutdown")
		os.Exit(1)
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}
	sched.Stop()
	cancel()

	log.Info("shutdown complete")
}

func buildCacheStore(cfg *config.Config) (cache.Store, func(), error) {
	rs := cache.NewRedisStore(cfg.RedisURL)
	return rs, func() { _ = rs.Close() }, nil
}

func buildPersistentStore(ctx context.Context, cfg *config.Config, log *logrus.Entry) (store.Store, *postgres.Pool, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL unset, using in-memory persistent store")
		return memory.NewStore(), nil, func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return postgres.NewStore(pool), pool, func() { pool.Close() }, nil
}

// chainEndpoint appends the chain API key to the RPC URL as a query
// parameter, the convention used by the major hosted Solana RPC
// providers (Helius, QuickNode).
func chainEndpoint(cfg *config.Config) string {
	if cfg.ChainAPIKey == "" {
		return cfg.ChainRPCURL
	}
	u, err := url.Parse(cfg.ChainRPCURL)
	if err != nil {
		return cfg.ChainRPCURL
	}
	q := u.Query()
	q.Set("api-key", cfg.ChainAPIKey)
	u.RawQuery = q.Encode()
	return u.String()
}
