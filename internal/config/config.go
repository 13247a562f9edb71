// Package config defines service configuration and its loading.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// APIKey is the shared secret expected in X-API-KEY. Empty disables the check.
	APIKey string `koanf:"api_key"`
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string `koanf:"jwt_secret" validate:"required"`
	// ProjectURL is the auth project URL; the token issuer is derived from it.
	ProjectURL  string `koanf:"project_url" validate:"required,url"`
	JWTAudience string `koanf:"jwt_audience" validate:"required"`

	// DatabaseDriver is postgres, sqlite or memory.
	DatabaseDriver      string `koanf:"database_driver" validate:"oneof=postgres sqlite memory"`
	DatabaseDSN         string `koanf:"database_dsn" validate:"required_unless=DatabaseDriver memory"`
	DatabaseAutoMigrate bool   `koanf:"database_auto_migrate"`
	// DatabaseSeedFile names a YAML fixture loaded at startup.
	DatabaseSeedFile string `koanf:"database_seed_file"`

	ModelName              string  `koanf:"model_name" validate:"required"`
	ModelAPIKey            string  `koanf:"model_api_key" validate:"required"`
	ModelBaseURL           string  `koanf:"model_base_url" validate:"required,url"`
	ModelTemperature       float64 `koanf:"model_temperature" validate:"gte=0,lte=2"`
	ModelMaxTokens         int     `koanf:"model_max_tokens" validate:"gt=0"`
	ModelRequestsPerSecond float64 `koanf:"model_requests_per_second" validate:"gte=0"`

	// WorkerCount bounds concurrent model calls across all runs.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	// QueueSize bounds pairs waiting for a worker.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	FanoutMaxConcurrency int           `koanf:"fanout_max_concurrency" validate:"gt=0"`
	FanoutFailurePolicy  string        `koanf:"fanout_failure_policy" validate:"oneof=partial fail_fast"`
	FanoutDeadline       time.Duration `koanf:"fanout_deadline" validate:"gt=0"`
	ScoringCallTimeout   time.Duration `koanf:"scoring_call_timeout" validate:"gt=0"`

	// RankingTotal is preference or all_metrics.
	RankingTotal string `koanf:"ranking_total" validate:"oneof=preference all_metrics"`

	// SubmitRateLimit caps submit requests per client IP per minute. Zero disables it.
	SubmitRateLimit int `koanf:"submit_rate_limit" validate:"gte=0"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		JWTAudience:          "authenticated",
		DatabaseDriver:       "memory",
		ModelName:            "gemini-1.5-flash-latest",
		ModelBaseURL:         "https://generativelanguage.googleapis.com",
		ModelTemperature:     0.2,
		ModelMaxTokens:       1024,
		WorkerCount:          16,
		QueueSize:            1024,
		FanoutMaxConcurrency: 16,
		FanoutFailurePolicy:  "partial",
		FanoutDeadline:       5 * time.Minute,
		ScoringCallTimeout:   30 * time.Second,
		RankingTotal:         "preference",
	}
}

// Validate checks every field.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
