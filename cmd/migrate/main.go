// Package main applies the embedded Postgres schema (spec §6.3)
// against DATABASE_URL and exits. Grounded on the teacher's flag-based
// CLI entrypoints (cmd/backtest, cmd/report) and its own
// cmd/server/main.go for the logging/config wiring.
package main

import (
	"context"
	"flag"
	"time"

	"tokenpulse/internal/config"
	"tokenpulse/internal/logging"
	"tokenpulse/internal/migrations"
	"tokenpulse/internal/store/postgres"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout for applying the full migration set")
	flag.Parse()

	log := logging.New("migrate")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	target := cfg.DatabaseURL
	if *dsn != "" {
		target = *dsn
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, target, postgres.PoolConfig{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	log.Info("migrations applied")
}
