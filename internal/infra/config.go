package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"server/internal/domain"
)

// VerifyMode selects how webhook signature failures are handled.
type VerifyMode string

const (
	// VerifyModeStrict rejects unverified deliveries with 401.
	VerifyModeStrict VerifyMode = "strict"
	// VerifyModePermissive logs the failure and processes the delivery anyway.
	VerifyModePermissive VerifyMode = "permissive"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	ProviderBaseURL     string
	ProviderToken       string
	ProviderTimeout     time.Duration
	ProviderMaxAttempts int
	WebhookPublicURL    string

	ProviderWebhookSecret string
	BillingWebhookSecret  string
	WebhookVerifyMode     VerifyMode
	WebhookTolerance      time.Duration

	RefundPolicy domain.RefundPolicy

	AMQPURL      string
	AMQPExchange string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	DBMaxConns       int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		ProviderBaseURL:     getEnv("PROVIDER_BASE_URL", "https://api.replicate.com"),
		ProviderToken:       os.Getenv("PROVIDER_API_TOKEN"),
		ProviderTimeout:     time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 30)),
		ProviderMaxAttempts: getEnvInt("PROVIDER_MAX_ATTEMPTS", 3),
		WebhookPublicURL:    os.Getenv("WEBHOOK_PUBLIC_URL"),

		ProviderWebhookSecret: os.Getenv("PROVIDER_WEBHOOK_SECRET"),
		BillingWebhookSecret:  os.Getenv("BILLING_WEBHOOK_SECRET"),
		WebhookVerifyMode:     VerifyMode(getEnv("WEBHOOK_VERIFY_MODE", string(VerifyModeStrict))),
		WebhookTolerance:      time.Second * time.Duration(getEnvInt("WEBHOOK_TOLERANCE_SECONDS", 300)),

		RefundPolicy: domain.RefundPolicy(getEnv("REFUND_POLICY", string(domain.RefundPolicyFull))),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "jobs.status"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ProviderWebhookSecret == "" {
		return nil, fmt.Errorf("PROVIDER_WEBHOOK_SECRET is required")
	}

	switch cfg.WebhookVerifyMode {
	case VerifyModeStrict, VerifyModePermissive:
	default:
		return nil, fmt.Errorf("unsupported WEBHOOK_VERIFY_MODE %q", cfg.WebhookVerifyMode)
	}
	switch cfg.RefundPolicy {
	case domain.RefundPolicyFull, domain.RefundPolicyNone:
	default:
		return nil, fmt.Errorf("unsupported REFUND_POLICY %q", cfg.RefundPolicy)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
