// Package config loads channel-sync's runtime configuration from the
// environment, following the teacher's getEnv/getEnvInt convention
// (services/order_service/src/database/connection.go) with the nested
// struct shape of services/api_gateway/src/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level configuration for the sync engine process.
type Config struct {
	Environment string
	WorkerID    string

	Database DatabaseConfig
	Redis    RedisConfig

	Channels ChannelCredentials

	RateLimit      map[string]RateLimitRule
	CircuitBreaker map[string]CircuitBreakerRule

	// RequireWebhookSignature gates spec.md §4.5 step 2 per channel: when
	// true (the default), a request with no signature header is rejected
	// with 401; when false, a missing header is accepted as configured.
	// Google is authenticated by bearer JWT instead and is not in this map.
	RequireWebhookSignature map[string]bool

	Payment PaymentConfig
}

// DatabaseConfig holds the primary relational store connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// DSN renders a libpq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// RedisConfig holds the coordination-store (KV) connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ChannelCredentials holds OAuth client credentials and webhook secrets
// per channel kind. Access/refresh tokens themselves live per-connection
// in the encrypted credential store, out of scope here (see spec.md §1).
type ChannelCredentials struct {
	AirbnbWebhookSecret    string
	BookingComWebhookSecret string
	ExpediaWebhookSecret   string
	FewoWebhookSecret      string
	GoogleJWKSURL          string

	AirbnbOAuthURL    string
	BookingComOAuthURL string
	ExpediaOAuthURL   string
	FewoOAuthURL      string
	GoogleOAuthURL    string

	AirbnbClientID     string
	AirbnbClientSecret string
	BookingComClientID     string
	BookingComClientSecret string
	ExpediaClientID     string
	ExpediaClientSecret string
	FewoClientID     string
	FewoClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
}

// RateLimitRule is the configured (N, W, burst) tuple for one channel.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// CircuitBreakerRule is the configured (F, S, T, H, Wc) tuple for one channel.
type CircuitBreakerRule struct {
	FailureThreshold  int
	SuccessThreshold  int
	Timeout           time.Duration
	HalfOpenMaxCalls  int
	Window            time.Duration
}

// PaymentConfig holds the payment-processor API credentials.
type PaymentConfig struct {
	APIKey        string
	WebhookSecret string
}

// DefaultRateLimits returns the configured table from spec.md §4.1.
func DefaultRateLimits() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"airbnb":      {Limit: 10, Window: time.Second, Burst: 15},
		"booking_com": {Limit: 20, Window: 60 * time.Second, Burst: 30},
		"expedia":     {Limit: 50, Window: time.Second, Burst: 75},
		"fewo_direkt": {Limit: 30, Window: time.Second, Burst: 45},
		"google":      {Limit: 100, Window: time.Second, Burst: 150},
	}
}

// DefaultRequireWebhookSignature returns the safe default (every channel
// requires its signature header) for spec.md §4.5 step 2's
// "If absent, accept (configuration-gated)" clause.
func DefaultRequireWebhookSignature() map[string]bool {
	return map[string]bool{
		"airbnb":      true,
		"booking_com": true,
		"expedia":     true,
		"fewo_direkt": true,
	}
}

// DefaultCircuitBreakers returns reasonable per-channel defaults. Load uses
// them as they are; no environment variable overrides them.
func DefaultCircuitBreakers() map[string]CircuitBreakerRule {
	rule := CircuitBreakerRule{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          120 * time.Second,
		HalfOpenMaxCalls: 3,
		Window:           60 * time.Second,
	}
	out := map[string]CircuitBreakerRule{}
	for _, ch := range []string{"airbnb", "booking_com", "expedia", "fewo_direkt", "google"} {
		out[ch] = rule
	}
	return out
}

// Load builds a Config from the process environment.
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("CHANNEL_SYNC_ENV", "development"),
		WorkerID:    getEnv("WORKER_ID", "worker-1"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", "postgres"),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", "channel_sync"),
			SSLMode:            getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:     getEnvInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_S", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Address:  getEnv("KV_ADDR", "localhost:6379"),
			Password: getEnv("KV_PASSWORD", ""),
			DB:       getEnvInt("KV_DB", 0),
		},
		Channels: ChannelCredentials{
			AirbnbWebhookSecret:     os.Getenv("AIRBNB_WEBHOOK_SECRET"),
			BookingComWebhookSecret: os.Getenv("BOOKING_COM_WEBHOOK_SECRET"),
			ExpediaWebhookSecret:    os.Getenv("EXPEDIA_WEBHOOK_SECRET"),
			FewoWebhookSecret:       os.Getenv("FEWO_WEBHOOK_SECRET"),
			GoogleJWKSURL:           getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
			AirbnbOAuthURL:          getEnv("AIRBNB_OAUTH_URL", "https://api.airbnb.com/v2/oauth2/token"),
			BookingComOAuthURL:      getEnv("BOOKING_COM_OAUTH_URL", "https://distribution-xml.booking.com/oauth2/token"),
			ExpediaOAuthURL:         getEnv("EXPEDIA_OAUTH_URL", "https://api.expediapartnercentral.com/oauth2/token"),
			FewoOAuthURL:            getEnv("FEWO_OAUTH_URL", "https://api.fewo-direkt.com/oauth2/token"),
			GoogleOAuthURL:          getEnv("GOOGLE_OAUTH_URL", "https://oauth2.googleapis.com/token"),
			AirbnbClientID:          os.Getenv("AIRBNB_CLIENT_ID"),
			AirbnbClientSecret:      os.Getenv("AIRBNB_CLIENT_SECRET"),
			BookingComClientID:      os.Getenv("BOOKING_COM_CLIENT_ID"),
			BookingComClientSecret:  os.Getenv("BOOKING_COM_CLIENT_SECRET"),
			ExpediaClientID:         os.Getenv("EXPEDIA_CLIENT_ID"),
			ExpediaClientSecret:     os.Getenv("EXPEDIA_CLIENT_SECRET"),
			FewoClientID:            os.Getenv("FEWO_CLIENT_ID"),
			FewoClientSecret:        os.Getenv("FEWO_CLIENT_SECRET"),
			GoogleClientID:          os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret:      os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		RateLimit:      DefaultRateLimits(),
		CircuitBreaker: DefaultCircuitBreakers(),
		RequireWebhookSignature: map[string]bool{
			"airbnb":      getEnvBool("AIRBNB_REQUIRE_WEBHOOK_SIGNATURE", true),
			"booking_com": getEnvBool("BOOKING_COM_REQUIRE_WEBHOOK_SIGNATURE", true),
			"expedia":     getEnvBool("EXPEDIA_REQUIRE_WEBHOOK_SIGNATURE", true),
			"fewo_direkt": getEnvBool("FEWO_REQUIRE_WEBHOOK_SIGNATURE", true),
		},
		Payment: PaymentConfig{
			APIKey:        os.Getenv("PAYMENT_API_KEY"),
			WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		},
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
