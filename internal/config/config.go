// Package config defines the global configuration structure for the paywatch
// processor. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast). In particular, a missing webhook secret
// is a fatal configuration error: the processor refuses to start rather than
// accept unauthenticated events.
package config

import (
	"time"

	"paywatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the paywatch processor.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"paywatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Billing   BillingConfig
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// GatewayConfig holds the payment gateway webhook integration settings.
// WebhookSecret keys the HMAC over inbound request bodies; without it the
// processor cannot authenticate events, so it is required (fail closed).
type GatewayConfig struct {
	WebhookSecret   SecretString `envconfig:"GATEWAY_WEBHOOK_SECRET" validate:"required"`
	SignatureHeader string       `envconfig:"GATEWAY_SIGNATURE_HEADER" default:"X-Gateway-Signature"`
}

// RateLimitConfig holds the per-source fixed-window rate limit settings.
// Backend selects the bucket store: "memory" keeps process-local buckets with
// TTL pruning; "redis" shares counters across instances via a Redis cluster.
type RateLimitConfig struct {
	Backend     string        `envconfig:"RATE_LIMIT_BACKEND" default:"memory" validate:"oneof=memory redis"`
	Window      time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	MaxRequests int           `envconfig:"RATE_LIMIT_MAX" default:"100" validate:"min=1"`
	RedisURL    SecretString  `envconfig:"RATE_LIMIT_REDIS_URL"`

	// PruneInterval controls how often the in-memory store evicts expired
	// buckets. Ignored by the redis backend (Redis TTLs handle eviction).
	PruneInterval time.Duration `envconfig:"RATE_LIMIT_PRUNE_INTERVAL" default:"5m"`
}

// BillingConfig holds the payment state machine thresholds. Extracted into
// configuration so the transition policy is tunable and testable
// independently of the transport layer.
type BillingConfig struct {
	// MaxFailedPayments is the failure count at which a subscription moves
	// from grace period to suspended.
	MaxFailedPayments int `envconfig:"BILLING_MAX_FAILED_PAYMENTS" default:"3" validate:"min=1"`
	// GracePeriod is how long service continues after the first failure.
	GracePeriod time.Duration `envconfig:"BILLING_GRACE_PERIOD" default:"168h"`
	// RenewalCycle is the interval added to the next payment date on a
	// successful charge.
	RenewalCycle time.Duration `envconfig:"BILLING_RENEWAL_CYCLE" default:"720h"`
}
