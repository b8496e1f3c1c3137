package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		OrderStore:            "postgres",
		DatabaseURL:           "postgres://localhost:5432/orderpay",
		JWTSecret:             strings.Repeat("s", 32),
		PaymentWebhookSecret:  "whsec_test",
		GatewayTimeout:        10 * time.Second,
		EmailFrom:             "orders@example.com",
		CacheProvider:         "memory",
		CacheSize:             100,
		RedisConnectionString: "redis://localhost:6379/0",
		LogFormat:             "text",
		Port:                  "8080",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "memory store needs no database",
			mutate: func(cfg *Config) { cfg.OrderStore = "memory"; cfg.DatabaseURL = "" },
		},
		{
			name:    "postgres store needs database url",
			mutate:  func(cfg *Config) { cfg.DatabaseURL = "" },
			wantErr: "DatabaseURL",
		},
		{
			name:    "unknown order store",
			mutate:  func(cfg *Config) { cfg.OrderStore = "sqlite" },
			wantErr: "oneof",
		},
		{
			name:    "short jwt secret",
			mutate:  func(cfg *Config) { cfg.JWTSecret = "short" },
			wantErr: "JWTSecret",
		},
		{
			name:    "missing webhook secret",
			mutate:  func(cfg *Config) { cfg.PaymentWebhookSecret = "" },
			wantErr: "PaymentWebhookSecret",
		},
		{
			name:    "stripe key without webhook secret",
			mutate:  func(cfg *Config) { cfg.StripeSecretKey = "sk_test_123" },
			wantErr: "StripeWebhookSecret",
		},
		{
			name:    "zero gateway timeout",
			mutate:  func(cfg *Config) { cfg.GatewayTimeout = 0 },
			wantErr: "GatewayTimeout",
		},
		{
			name:    "unknown cache provider",
			mutate:  func(cfg *Config) { cfg.CacheProvider = "memcached" },
			wantErr: "CacheProvider",
		},
		{
			name: "redis cache with bad url",
			mutate: func(cfg *Config) {
				cfg.CacheProvider = "redis"
				cfg.RedisConnectionString = "localhost:6379"
			},
			wantErr: "REDIS_CONNECTION_STRING",
		},
		{
			name:    "plain http track url",
			mutate:  func(cfg *Config) { cfg.TrackOrderURL = "http://shop.example.com/track" },
			wantErr: "https",
		},
		{
			name:   "local http track url",
			mutate: func(cfg *Config) { cfg.TrackOrderURL = "http://localhost:3000/track" },
		},
		{
			name:    "sample rate out of range",
			mutate:  func(cfg *Config) { cfg.SentrySampleRate = 1.5 },
			wantErr: "SentrySampleRate",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ORDER_STORE", "memory")
	t.Setenv("JWT_SECRET", strings.Repeat("j", 32))
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GatewayTimeout != 3*time.Second {
		t.Fatalf("GatewayTimeout = %s", cfg.GatewayTimeout)
	}
	if cfg.CacheProvider != "memory" || cfg.Port != "8080" || cfg.UsesRedis() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("ORDER_STORE", "memory")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing secrets to fail")
	}
}
