// Package config defines the configuration structure for the notification
// dispatcher. Configuration is loaded once at process initialization (Lambda
// Cold Start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// The identity provider credential is deliberately optional: its absence is a
// reportable runtime state (see package credential), not a startup failure.
package config

import (
	"time"

	"meteonotify/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// It is populated once during process initialization and never modified.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"meteonotify"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	AWS           AWSConfig
	Identity      IdentityConfig
	Email         EmailConfig
	Site          SiteConfig
	Dispatch      DispatchConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds local HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// AWSConfig holds AWS regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// IdentityConfig holds the identity provider (Firebase) service account.
type IdentityConfig struct {
	// ServiceAccountKey is the JSON-encoded service account. May be empty.
	ServiceAccountKey SecretString `envconfig:"FIREBASE_SERVICE_ACCOUNT_KEY"`

	// LocalDirectoryEmails seeds the stub directory used when APP_ENV=local
	// and no service account is configured.
	LocalDirectoryEmails []string `envconfig:"LOCAL_DIRECTORY_EMAILS"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	Provider    string        `envconfig:"EMAIL_PROVIDER" default:"resend" validate:"oneof=resend ses smtp stub"`
	FromAddress string        `envconfig:"EMAIL_FROM_ADDRESS" default:"onboarding@resend.dev" validate:"required,email"`
	FromName    string        `envconfig:"EMAIL_FROM_NAME" default:"METEO Burkina"`
	HTTPTimeout time.Duration `envconfig:"EMAIL_HTTP_TIMEOUT" default:"10s"`

	// BccPlaceholderTo is the visible "to" address in bcc dispatch mode.
	// Empty means the from address is used.
	BccPlaceholderTo string `envconfig:"EMAIL_BCC_PLACEHOLDER_TO" validate:"omitempty,email"`

	// Resend
	ResendAPIKey  SecretString `envconfig:"RESEND_API_KEY"`
	ResendBaseURL string       `envconfig:"RESEND_BASE_URL" validate:"omitempty,url"`

	// AWS SES
	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`

	// SMTP
	SMTPHost     string       `envconfig:"SMTP_HOST" validate:"required_if=Provider smtp"`
	SMTPPort     int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string       `envconfig:"SMTP_USERNAME"`
	SMTPPassword SecretString `envconfig:"SMTP_PASSWORD"`
	SMTPTLSMode  string       `envconfig:"SMTP_TLS_MODE" default:"auto" validate:"oneof=auto starttls ssl none"`
}

// SiteConfig identifies the publishing site in subjects and email bodies.
type SiteConfig struct {
	Name string `envconfig:"SITE_NAME" default:"METEO Burkina" validate:"required"`
	URL  string `envconfig:"SITE_URL" default:"https://meteoburkina.bf/" validate:"required,url"`
}

// DispatchConfig selects the recipient and delivery strategy.
type DispatchConfig struct {
	Mode types.DispatchMode `envconfig:"DISPATCH_MODE" default:"to" validate:"oneof=to bcc fanout"`

	// RecipientSelectionEnabled honours the optional recipientId field. When
	// false every request is a broadcast.
	RecipientSelectionEnabled bool   `envconfig:"RECIPIENT_SELECTION_ENABLED" default:"true"`
	BroadcastSentinel         string `envconfig:"BROADCAST_SENTINEL" default:"all" validate:"required"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"MeteoNotify"`
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
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
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
