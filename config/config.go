// Package config builds the bountyd runtime configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
)

// Config captures runtime configuration for the bounty daemon.
type Config struct {
	ListenAddress     string
	Environment       string
	DatabaseDSN       string
	LedgerRPCURL      string
	LedgerAuthToken   string
	LedgerRateLimit   float64
	GitHubAPIBase     string
	GitHubToken       string
	WebhookURL        string
	WebhookSecret     string
	ReserveFloorDrops *big.Int
}

// FromEnv builds a configuration using environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:   getenvDefault("BOUNTYD_LISTEN", ":8082"),
		Environment:     os.Getenv("BOUNTYD_ENV"),
		DatabaseDSN:     getenvDefault("BOUNTYD_DB_DSN", "bountyd.db"),
		LedgerRPCURL:    os.Getenv("BOUNTYD_LEDGER_URL"),
		LedgerAuthToken: os.Getenv("BOUNTYD_LEDGER_TOKEN"),
		GitHubAPIBase:   os.Getenv("BOUNTYD_GITHUB_API"),
		GitHubToken:     os.Getenv("BOUNTYD_GITHUB_TOKEN"),
		WebhookURL:      strings.TrimSpace(os.Getenv("BOUNTYD_WEBHOOK_URL")),
		WebhookSecret:   os.Getenv("BOUNTYD_WEBHOOK_SECRET"),
	}
	if cfg.LedgerRPCURL == "" {
		return Config{}, errors.New("BOUNTYD_LEDGER_URL must be set")
	}
	if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		return Config{}, errors.New("BOUNTYD_WEBHOOK_SECRET must be set when BOUNTYD_WEBHOOK_URL is set")
	}

	if raw := strings.TrimSpace(os.Getenv("BOUNTYD_LEDGER_RATE")); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse BOUNTYD_LEDGER_RATE: %w", err)
		}
		if rate < 0 {
			return Config{}, errors.New("BOUNTYD_LEDGER_RATE must be non-negative")
		}
		cfg.LedgerRateLimit = rate
	}

	if raw := strings.TrimSpace(os.Getenv("BOUNTYD_RESERVE_FLOOR_DROPS")); raw != "" {
		floor, ok := new(big.Int).SetString(raw, 10)
		if !ok || floor.Sign() < 0 {
			return Config{}, fmt.Errorf("parse BOUNTYD_RESERVE_FLOOR_DROPS: invalid value %q", raw)
		}
		cfg.ReserveFloorDrops = floor
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
