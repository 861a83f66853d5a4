package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// External services
	CompletionAPIURL string
	NotifyAPIURL     string

	// Payment providers
	StripeSecretKey     string
	StripeWebhookSecret string
	BictorysAPIURL      string
	BictorysAPIKey      string
	BictorysWebhookKey  string

	// Where hosted checkout pages send the buyer back.
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Stripe settles in EUR; XOF amounts are converted at this rate and
	// must clear the processor floor after conversion.
	StripeEURRate   float64 // XOF per EUR
	StripeMinAmount float64 // EUR

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Caches
	SessionTTL   time.Duration
	ZoneCacheTTL time.Duration

	// Conversation tuning
	ExpressCheckoutThreshold float64
	TaxonomyFile             string

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Kafka events (optional; empty broker disables publishing)
	KafkaBroker string
	KafkaTopic  string

	// Back-office auth
	JWTSecret    string
	JWTAccessTTL time.Duration

	// Storefront
	Currency string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CompletionAPIURL: getEnv("COMPLETION_API_URL", "http://localhost:8090"),
		NotifyAPIURL:     getEnv("NOTIFY_API_URL", "http://localhost:8091"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		BictorysAPIURL:      getEnv("BICTORYS_API_URL", "https://api.bictorys.com"),
		BictorysAPIKey:      getEnv("BICTORYS_API_KEY", ""),
		BictorysWebhookKey:  getEnv("BICTORYS_WEBHOOK_KEY", ""),

		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "https://boutik.cards/merci"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "https://boutik.cards/annule"),

		StripeEURRate:   getEnvFloat("STRIPE_EUR_RATE", 655.957),
		StripeMinAmount: getEnvFloat("STRIPE_MIN_AMOUNT_EUR", 0.50),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		SessionTTL:   getEnvDuration("SESSION_TTL", time.Hour),
		ZoneCacheTTL: getEnvDuration("ZONE_CACHE_TTL", 10*time.Minute),

		ExpressCheckoutThreshold: getEnvFloat("EXPRESS_CHECKOUT_THRESHOLD", 0.7),
		TaxonomyFile:             getEnv("TAXONOMY_FILE", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		KafkaBroker: getEnv("KAFKA_BROKER", ""),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "boutik.events"),

		JWTSecret:    getEnv("JWT_SECRET", "boutik-default-dev-secret-change-me"),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 8*time.Hour),

		Currency: getEnv("CURRENCY", "XOF"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
