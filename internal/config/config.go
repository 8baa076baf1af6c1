// Package config loads the service's environment-driven configuration
// (spec §6.5), grounded on the teacher's .env-file bootstrap in
// cmd/server/main.go and on picoclaw's use of caarlos0/env for
// struct-tag env parsing.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven setting for the service.
type Config struct {
	Port          int           `env:"PORT" envDefault:"3305"`
	DatabaseURL   string        `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/tokenpulse?sslmode=disable"`
	RedisURL      string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	ChainAPIKey   string        `env:"CHAIN_API_KEY,required"`
	ChainRPCURL   string        `env:"CHAIN_RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
	AggregatorURL string        `env:"AGGREGATOR_URL" envDefault:"https://api.aggregator.example/v1"`
	NativeAMMURL  string        `env:"NATIVE_AMM_URL" envDefault:"https://api.native-amm.example"`
	RiskReportURL string        `env:"RISK_REPORT_URL" envDefault:"https://api.riskscore.example"`
	RiskAPIKey    string        `env:"RISK_API_KEY" envDefault:""`
	PollMs        int           `env:"POLL_MS" envDefault:"2000"`
	WorkerCount   int           `env:"WORKER_COUNT" envDefault:"10"`
	AggregatorTTL time.Duration `env:"AGGREGATOR_TTL" envDefault:"20s"`
	NodeEnv       string        `env:"NODE_ENV" envDefault:"development"`

	DBMaxConns       int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns       int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
}

// Load parses environment variables into a Config, after first
// applying any values found in a local .env file (existing process
// env vars always win, matching the teacher's loadEnvFile).
func Load() (*Config, error) {
	loadDotEnv(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs from path if it exists, without
// overriding variables already present in the process environment.
func loadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
