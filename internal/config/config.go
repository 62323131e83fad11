// Package config reads process configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DatabaseURL   string // empty selects the in-memory store
	TokenTTL      time.Duration
	SweepInterval time.Duration
	MaxSessionAge time.Duration
	DeadlineGrace time.Duration
	Dev           bool
}

func defaults() Config {
	return Config{
		Addr:          ":8080",
		TokenTTL:      2 * time.Hour,
		SweepInterval: 30 * time.Second,
		MaxSessionAge: time.Hour,
		DeadlineGrace: 2 * time.Minute,
	}
}

// Load layers the environment over defaults. A missing .env file is
// fine; a malformed duration is not.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.Dev = os.Getenv("DEV") == "true"

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"TOKEN_TTL", &cfg.TokenTTL},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
		{"MAX_SESSION_AGE", &cfg.MaxSessionAge},
		{"DEADLINE_GRACE", &cfg.DeadlineGrace},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}
