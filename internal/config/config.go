// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// API configures the HTTP server binary.
type API struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	LockWait       time.Duration `env:"LOCK_WAIT" envDefault:"250ms"`
	CacheTTL       time.Duration `env:"SITUATION_CACHE_TTL" envDefault:"30s"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	GCSBucket      string        `env:"GCS_BUCKET"`
	ArchiveProject string        `env:"ARCHIVE_PROJECT"`
	ArchiveDataset string        `env:"ARCHIVE_DATASET" envDefault:"syndic"`
	GeminiModel    string        `env:"GEMINI_MODEL"`
	UseGemini      bool          `env:"USE_GEMINI_ATTRIBUTION" envDefault:"false"`
}

// Worker configures the standalone import worker binary.
type Worker struct {
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"100"`
	GCSBucket string `env:"GCS_BUCKET"`
}

// LoadAPI parses API configuration from the environment.
func LoadAPI() (API, error) {
	var cfg API
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing API config: %w", err)
	}
	return cfg, nil
}

// LoadWorker parses worker configuration from the environment.
func LoadWorker() (Worker, error) {
	var cfg Worker
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing worker config: %w", err)
	}
	return cfg, nil
}
