// Package config provides environment configuration for the webhook engine.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
)

// Signature enforcement modes.
const (
	SignatureModePermissive = "permissive_audit"
	SignatureModeEnforce    = "enforce"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`

	// AdminToken guards the operator control plane. Empty disables the
	// operator endpoints entirely rather than leaving them open.
	AdminToken string `env:"ADMIN_TOKEN"`

	AcceptedSchemaVersions []string `env:"ACCEPTED_SCHEMA_VERSIONS" envSeparator:"," envDefault:"v1,v2"`
	ProviderSchemaDir      string   `env:"PROVIDER_SCHEMA_DIR"`

	SignatureMode      string        `env:"SIGNATURE_MODE"      envDefault:"permissive_audit"`
	SignatureTolerance time.Duration `env:"SIGNATURE_TOLERANCE" envDefault:"5m"`

	SmartleadWebhookSecret  string `env:"SMARTLEAD_WEBHOOK_SECRET"`
	HeyreachWebhookSecret   string `env:"HEYREACH_WEBHOOK_SECRET"`
	LobWebhookSecret        string `env:"LOB_WEBHOOK_SECRET"`
	EmailbisonWebhookSecret string `env:"EMAILBISON_WEBHOOK_SECRET"`

	ReplayWorkers       int           `env:"REPLAY_WORKERS"        envDefault:"4"`
	ReplayQueueCapacity int           `env:"REPLAY_QUEUE_CAPACITY" envDefault:"64"`
	ReplayBatchSize     int           `env:"REPLAY_BATCH_SIZE"     envDefault:"10"`
	ReplaySubmitTimeout time.Duration `env:"REPLAY_SUBMIT_TIMEOUT" envDefault:"2s"`
	ReplayBaseDelay     time.Duration `env:"REPLAY_BASE_DELAY"     envDefault:"100ms"`
	ReplayBackoffFactor float64       `env:"REPLAY_BACKOFF_FACTOR" envDefault:"2.0"`
	ReplayMaxDelay      time.Duration `env:"REPLAY_MAX_DELAY"      envDefault:"30s"`
	ReplayMaxPerRun     int           `env:"REPLAY_MAX_PER_RUN"    envDefault:"500"`

	MetricsWindow            time.Duration `env:"METRICS_WINDOW"              envDefault:"5m"`
	DeadLetterAlertThreshold int64         `env:"DEAD_LETTER_ALERT_THRESHOLD" envDefault:"50"`
	SignatureAlertThreshold  int64         `env:"SIGNATURE_ALERT_THRESHOLD"   envDefault:"20"`
	ReplayFailAlertThreshold int64         `env:"REPLAY_FAIL_ALERT_THRESHOLD" envDefault:"25"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before the service may serve
// requests. Enforce mode without a secret fails closed here instead of
// silently downgrading to permissive.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch c.SignatureMode {
	case SignatureModePermissive, SignatureModeEnforce:
	default:
		return fmt.Errorf("SIGNATURE_MODE must be %q or %q, got %q",
			SignatureModePermissive, SignatureModeEnforce, c.SignatureMode)
	}

	if c.SignatureMode == SignatureModeEnforce {
		for provider, secret := range c.WebhookSecrets() {
			if secret == "" {
				return fmt.Errorf("signature mode is enforce but no webhook secret is configured for provider %q", provider)
			}
		}
	}

	if len(c.AcceptedSchemaVersions) == 0 {
		return fmt.Errorf("ACCEPTED_SCHEMA_VERSIONS must not be empty")
	}
	if c.ReplayWorkers <= 0 || c.ReplayQueueCapacity <= 0 || c.ReplayBatchSize <= 0 {
		return fmt.Errorf("replay worker count, queue capacity and batch size must be positive")
	}
	if c.ReplayBackoffFactor < 1 {
		return fmt.Errorf("REPLAY_BACKOFF_FACTOR must be >= 1")
	}
	if c.ReplayMaxDelay < c.ReplayBaseDelay {
		return fmt.Errorf("REPLAY_MAX_DELAY must be >= REPLAY_BASE_DELAY")
	}
	return nil
}

// WebhookSecrets returns the per-provider shared secrets for signature
// verification.
func (c *Config) WebhookSecrets() map[string]string {
	return map[string]string{
		domain.ProviderSmartlead:  c.SmartleadWebhookSecret,
		domain.ProviderHeyreach:   c.HeyreachWebhookSecret,
		domain.ProviderLob:        c.LobWebhookSecret,
		domain.ProviderEmailbison: c.EmailbisonWebhookSecret,
	}
}
