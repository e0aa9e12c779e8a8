package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for both the api and worker binaries.
// Fields marked required fail closed: LoadConfig returns an error rather
// than booting with a zero-value secret or DSN.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	PGDSN    string `envconfig:"PG_DSN" required:"true"`
	PGCACert string `envconfig:"PG_CA_CERT" default:""`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	LLMAPIKey         string        `envconfig:"LLM_API_KEY" required:"true"`
	LLMModelID        string        `envconfig:"LLM_MODEL_ID" default:"gpt-4o-mini"`
	LLMBaseURL        string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMRequestTimeout time.Duration `envconfig:"LLM_REQUEST_TIMEOUT" default:"20s"`

	IdentityProviderAudience string        `envconfig:"IDP_AUDIENCE" required:"true"`
	IdentityProviderJWKSURL  string        `envconfig:"IDP_JWKS_URL" required:"true"`
	JWKSCacheTTL             time.Duration `envconfig:"JWKS_CACHE_TTL" default:"1h"`

	ObjectStoreAccountName string        `envconfig:"OBJECT_STORE_ACCOUNT_NAME" required:"true"`
	ObjectStoreAccountKey  string        `envconfig:"OBJECT_STORE_ACCOUNT_KEY" required:"true"`
	ObjectStoreContainer   string        `envconfig:"OBJECT_STORE_CONTAINER" default:"invoices"`
	ObjectStoreBaseURL     string        `envconfig:"OBJECT_STORE_BASE_URL" default:""`
	ObjectStoreTokenTTL    time.Duration `envconfig:"OBJECT_STORE_TOKEN_TTL" default:"15m"`

	BusinessLegalName string `envconfig:"BUSINESS_LEGAL_NAME" default:""`

	RateLimitFreeTierMax       int           `envconfig:"RATE_LIMIT_FREE_TIER_MAX" default:"100"`
	RateLimitProTierMax        int           `envconfig:"RATE_LIMIT_PRO_TIER_MAX" default:"1000"`
	RateLimitEnterpriseTierMax int           `envconfig:"RATE_LIMIT_ENTERPRISE_TIER_MAX" default:"10000"`
	RateLimitReadMultiplier    int           `envconfig:"RATE_LIMIT_READ_MULTIPLIER" default:"5"`
	RateLimitWindow            time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`

	ErrorReportingDSN string `envconfig:"ERROR_REPORTING_DSN" default:""`
}

// LoadConfig reads configuration from environment variables, failing closed
// when a required secret or endpoint is missing.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.PGDSN == "" {
		return nil, errors.New("PG_DSN must be provided")
	}
	if cfg.LLMAPIKey == "" {
		return nil, errors.New("LLM_API_KEY must be provided")
	}
	if cfg.IdentityProviderAudience == "" || cfg.IdentityProviderJWKSURL == "" {
		return nil, errors.New("IDP_AUDIENCE and IDP_JWKS_URL must be provided")
	}
	if cfg.ObjectStoreAccountName == "" || cfg.ObjectStoreAccountKey == "" {
		return nil, errors.New("OBJECT_STORE_ACCOUNT_NAME and OBJECT_STORE_ACCOUNT_KEY must be provided")
	}
	return &cfg, nil
}

// ObjectStoreEndpoint resolves the blob service base URL, defaulting to
// the account's default Azure Blob endpoint when none is configured
// explicitly (e.g. for an emulator or S3-compatible endpoint in tests).
func (c *Config) ObjectStoreEndpoint() string {
	if c.ObjectStoreBaseURL != "" {
		return c.ObjectStoreBaseURL
	}
	return "https://" + c.ObjectStoreAccountName + ".blob.core.windows.net"
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
