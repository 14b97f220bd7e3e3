// Package config defines the global configuration structure for the SubTrack
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"subtrack/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the SubTrack service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"subtrack"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Billing       BillingConfig
	Mail          MailConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig

	// Build Metadata (injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// BillingConfig holds Stripe payment integration credentials and the
// checkout redirect targets (no trailing slash).
type BillingConfig struct {
	StripeSecretKey    SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	CheckoutSuccessURL string       `envconfig:"CHECKOUT_SUCCESS_URL" validate:"required,url"`
	CheckoutCancelURL  string       `envconfig:"CHECKOUT_CANCEL_URL" validate:"required,url"`
}

// MailConfig holds SMTP delivery credentials. Key takes precedence over
// Password when both are set, matching providers that issue API keys as
// SMTP passwords.
type MailConfig struct {
	Host          string       `envconfig:"MAIL_HOST" validate:"required"`
	Port          int          `envconfig:"MAIL_PORT" default:"587"`
	Username      string       `envconfig:"MAIL_USERNAME"`
	Password      SecretString `envconfig:"MAIL_PASSWORD"`
	Key           SecretString `envconfig:"MAIL_KEY"`
	UseSSL        bool         `envconfig:"MAIL_USE_SSL" default:"false"`
	UseTLS        bool         `envconfig:"MAIL_USE_TLS" default:"true"`
	DefaultSender string       `envconfig:"MAIL_DEFAULT_SENDER" validate:"required,email"`
}

// JobsConfig holds tuning for the background sync and alert jobs.
type JobsConfig struct {
	AlertDaysBeforeEnd int `envconfig:"ALERT_DAYS_BEFORE_END" default:"3" validate:"min=1"`
	SyncPageLimit      int `envconfig:"SYNC_PAGE_LIMIT" default:"100" validate:"min=1,max=100"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SubTrack"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
