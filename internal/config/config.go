package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	OrderStore  string `env:"ORDER_STORE" envDefault:"postgres" validate:"oneof=postgres memory"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=OrderStore postgres"`
	// AnalyticsDatabaseURL enables the orders mirror when set.
	AnalyticsDatabaseURL string `env:"ANALYTICS_DATABASE_URL"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=16"`

	PaymentWebhookSecret string        `env:"PAYMENT_WEBHOOK_SECRET,required" validate:"required"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	PricingConfigPath    string        `env:"PRICING_CONFIG_PATH"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" validate:"required_with=StripeSecretKey"`

	ResendAPIKey  string `env:"RESEND_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"orders@example.com" validate:"omitempty,email"`
	TrackOrderURL string `env:"TRACK_ORDER_URL" validate:"omitempty,url"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	CacheSize             int    `env:"CACHE_SIZE" envDefault:"10000" validate:"gte=0"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`
	// RealtimeChannel is the Redis pub/sub channel for order events. Empty disables publishing.
	RealtimeChannel string `env:"REALTIME_CHANNEL"`

	SentryDSN         string  `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment string  `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	SentrySampleRate  float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.2" validate:"gte=0,lte=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if c.CacheProvider == "redis" || c.RealtimeChannel != "" {
		parsed, err := url.Parse(strings.TrimSpace(c.RedisConnectionString))
		if err != nil || (parsed.Scheme != "redis" && parsed.Scheme != "rediss") {
			return fmt.Errorf("REDIS_CONNECTION_STRING must be a redis:// or rediss:// URL")
		}
	}

	trackURL := strings.TrimSpace(c.TrackOrderURL)
	if trackURL != "" {
		parsed, err := url.Parse(trackURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("TRACK_ORDER_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("TRACK_ORDER_URL must use https outside local development")
		}
	}

	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.CacheProvider == "redis" || c.RealtimeChannel != ""
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
