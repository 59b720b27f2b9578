// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Webhook authentication
	WebhookSecret   string // Shared HMAC secret with the payment gateway
	ReplayTolerance int    // Seconds of acceptable webhook clock skew
	SignatureHeader string // Header carrying timestamp + signature candidates

	// Fraud policy
	VelocityLimitPerMinute int
	VelocityLimitPerHour   int
	SpendingLimitCents     int64
	MicroAmountCents       int64
	LargeAmountCents       int64
	DisposableDomains      []string
	ScoreThresholdLow      float64
	ScoreThresholdHigh     float64

	// Signal weights
	WeightVelocityMinute float64
	WeightVelocityHour   float64
	WeightMicroAmount    float64
	WeightLargeAmount    float64
	WeightSpendingLimit  float64
	WeightDisposable     float64
	WeightEmailPattern   float64
	WeightRoundAmount    float64

	// Charging
	StripeSecretKey string // Optional; checkout proceeds uncharged when empty
	Currency        string

	// Observability
	OTLPEndpoint string
	RateLimitRPM int
}

// Defaults mirror the documented policy values.
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultSignatureHeader   = "Paytrust-Signature"
	DefaultReplayTolerance   = 300
	DefaultVelocityPerMin    = 3
	DefaultVelocityPerHour   = 10
	DefaultSpendingCents     = 100_000   // $1,000/hour
	DefaultMicroCents        = 100       // below $1 looks like card testing
	DefaultLargeCents        = 1_000_000 // above $10,000 is out of pattern
	DefaultThresholdLow      = 0.4
	DefaultThresholdHigh     = 0.7
	DefaultCurrency          = "usd"
	DefaultRateLimitPerMin   = 120
	DefaultDisposableDomains = "tempmail.com,throwaway.com,guerrillamail.com,10minutemail.com,mailinator.com,temp-mail.org,fakeinbox.com,trashmail.com"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set

		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"), // Required, no default
		ReplayTolerance: int(getEnvInt64("REPLAY_TOLERANCE_SECONDS", DefaultReplayTolerance)),
		SignatureHeader: getEnv("SIGNATURE_HEADER", DefaultSignatureHeader),

		VelocityLimitPerMinute: int(getEnvInt64("VELOCITY_LIMIT_PER_MINUTE", DefaultVelocityPerMin)),
		VelocityLimitPerHour:   int(getEnvInt64("VELOCITY_LIMIT_PER_HOUR", DefaultVelocityPerHour)),
		SpendingLimitCents:     getEnvInt64("SPENDING_LIMIT_CENTS", DefaultSpendingCents),
		MicroAmountCents:       getEnvInt64("MICRO_AMOUNT_CENTS", DefaultMicroCents),
		LargeAmountCents:       getEnvInt64("LARGE_AMOUNT_CENTS", DefaultLargeCents),
		DisposableDomains:      splitDomains(getEnv("DISPOSABLE_EMAIL_DOMAINS", DefaultDisposableDomains)),
		ScoreThresholdLow:      getEnvFloat("SCORE_THRESHOLD_LOW", DefaultThresholdLow),
		ScoreThresholdHigh:     getEnvFloat("SCORE_THRESHOLD_HIGH", DefaultThresholdHigh),

		WeightVelocityMinute: getEnvFloat("WEIGHT_VELOCITY_MINUTE", 0.5),
		WeightVelocityHour:   getEnvFloat("WEIGHT_VELOCITY_HOUR", 0.3),
		WeightMicroAmount:    getEnvFloat("WEIGHT_MICRO_AMOUNT", 0.6),
		WeightLargeAmount:    getEnvFloat("WEIGHT_LARGE_AMOUNT", 0.3),
		WeightSpendingLimit:  getEnvFloat("WEIGHT_SPENDING_LIMIT", 0.4),
		WeightDisposable:     getEnvFloat("WEIGHT_DISPOSABLE_EMAIL", 0.5),
		WeightEmailPattern:   getEnvFloat("WEIGHT_EMAIL_PATTERN", 0.2),
		WeightRoundAmount:    getEnvFloat("WEIGHT_ROUND_AMOUNT", 0.2),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		Currency:        getEnv("CURRENCY", DefaultCurrency),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM: int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitPerMin)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.ReplayTolerance <= 0 {
		return fmt.Errorf("REPLAY_TOLERANCE_SECONDS must be positive, got %d", c.ReplayTolerance)
	}
	if c.VelocityLimitPerMinute <= 0 || c.VelocityLimitPerHour <= 0 {
		return fmt.Errorf("velocity limits must be positive")
	}
	if c.VelocityLimitPerMinute > c.VelocityLimitPerHour {
		return fmt.Errorf("per-minute velocity limit (%d) cannot exceed per-hour limit (%d)",
			c.VelocityLimitPerMinute, c.VelocityLimitPerHour)
	}
	if c.SpendingLimitCents <= 0 {
		return fmt.Errorf("SPENDING_LIMIT_CENTS must be positive")
	}
	if c.ScoreThresholdLow < 0 || c.ScoreThresholdHigh > 1 || c.ScoreThresholdLow >= c.ScoreThresholdHigh {
		return fmt.Errorf("score thresholds must satisfy 0 <= low < high <= 1, got low=%.2f high=%.2f",
			c.ScoreThresholdLow, c.ScoreThresholdHigh)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// splitDomains parses a comma-separated domain list, lowercasing and
// dropping empty entries.
func splitDomains(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
