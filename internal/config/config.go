package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"parlomo-ticketing/internal/models"
)

// ErrMissingQRSigningKey is returned by Load when QR_SIGNING_KEY is
// unset. There is deliberately no fallback key: a process without a
// key must not start.
var ErrMissingQRSigningKey = errors.New("QR_SIGNING_KEY is not set")

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Promo    PromoConfig
	Auth     AuthConfig
	Fees     models.FeeConfig

	// Symmetric key used to sign ticket QR payloads. Required.
	QRSigningKey string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type CheckoutConfig struct {
	// How long a checkout session stays open before it expires.
	SessionTTL time.Duration
}

type PromoConfig struct {
	// Base URL of the admin API that owns promo code records.
	ServiceURL string
}

type AuthConfig struct {
	// OIDC issuer that signs buyer tokens. Empty disables the
	// verification middleware.
	Issuer string

	// Client credentials for service-to-service calls.
	ClientID     string
	ClientSecret string
}

func Load() (*Config, error) {
	qrKey := os.Getenv("QR_SIGNING_KEY")
	if qrKey == "" {
		return nil, ErrMissingQRSigningKey
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Checkout: CheckoutConfig{
			SessionTTL: time.Duration(getEnvInt("CHECKOUT_SESSION_TTL_MINUTES", 15)) * time.Minute,
		},
		Promo: PromoConfig{
			ServiceURL: getEnv("PROMO_SERVICE_URL", ""),
		},
		Auth: AuthConfig{
			Issuer:       getEnv("OIDC_ISSUER", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		},
		Fees: models.FeeConfig{
			ServiceFeeRate:  getEnvFloat("SERVICE_FEE_RATE", 5),
			ServiceFeeCap:   int64(getEnvInt("SERVICE_FEE_CAP", 1000)),
			ProcessingFee:   int64(getEnvInt("PROCESSING_FEE", 200)),
			PlatformFeeRate: getEnvFloat("PLATFORM_FEE_RATE", 10),
			Currency:        getEnv("CURRENCY", "GBP"),
		},
		QRSigningKey: qrKey,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
