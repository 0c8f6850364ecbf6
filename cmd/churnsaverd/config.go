package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon's environment configuration. The webhook secrets
// list is ordered newest-first so rotated secrets keep verifying during
// the overlap window.
type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend selects the store: memory, postgres, bun, or redis.
	Backend       string `env:"STORE_BACKEND" envDefault:"memory"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	WebhookSecrets []string      `env:"WEBHOOK_SECRETS,notEmpty" envSeparator:","`
	WebhookSkew    time.Duration `env:"WEBHOOK_SKEW_WINDOW" envDefault:"5m"`

	Concurrency     int           `env:"CONCURRENCY" envDefault:"10"`
	Queues          []string      `env:"QUEUES" envDefault:"default" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses and validates the environment configuration.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Backend {
	case "memory":
	case "postgres", "bun":
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("STORE_BACKEND=%s requires POSTGRES_DSN", cfg.Backend)
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("STORE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}

	return cfg, nil
}
