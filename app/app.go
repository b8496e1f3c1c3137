package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/cache"
	"github.com/smartapp/orderpay/internal/catalog"
	"github.com/smartapp/orderpay/internal/config"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/email"
	"github.com/smartapp/orderpay/internal/handlers"
	"github.com/smartapp/orderpay/internal/logging"
	"github.com/smartapp/orderpay/internal/mirror"
	"github.com/smartapp/orderpay/internal/observability"
	"github.com/smartapp/orderpay/internal/payments"
	"github.com/smartapp/orderpay/internal/realtime"
	"github.com/smartapp/orderpay/internal/services"
	"github.com/smartapp/orderpay/internal/stripe"
)

const emailHTTPTimeout = 10 * time.Second

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	AnalyticsDB   *pgxpool.Pool
	CacheProvider cache.Provider
	Redis         *redis.Client
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := initSentry(cfg); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	a := &App{Config: cfg, Logger: logger}
	if err := a.init(startupCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	orders, err := a.openOrderStore(ctx)
	if err != nil {
		return err
	}

	profile := catalog.DefaultProfile()
	if path := strings.TrimSpace(cfg.PricingConfigPath); path != "" {
		profile, err = catalog.NewParser().LoadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load pricing profile: %w", err)
		}
		if err := catalog.NewValidator().Validate(profile); err != nil {
			return fmt.Errorf("invalid pricing profile: %w", err)
		}
	}

	a.CacheProvider, err = cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		MemorySize:            cfg.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	var publisher services.EventPublisher
	if cfg.RealtimeChannel != "" {
		a.Redis, err = cache.NewRedisClient(cfg.RedisConnectionString)
		if err != nil {
			return fmt.Errorf("failed to connect realtime publisher: %w", err)
		}
		publisher = realtime.NewRedisPublisher(a.Redis, cfg.RealtimeChannel)
	}

	var syncNotifier services.SyncNotifier
	if cfg.AnalyticsDatabaseURL != "" {
		a.AnalyticsDB, err = db.Connect(ctx, cfg.AnalyticsDatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect analytics database: %w", err)
		}
		orderMirror := mirror.NewPostgresMirror(a.AnalyticsDB, logger.With("component", "order_mirror"))
		if err := orderMirror.Migrate(ctx); err != nil {
			return err
		}
		syncNotifier = orderMirror
	}

	var emailProvider email.Provider = email.DisabledProvider{}
	if cfg.ResendAPIKey != "" {
		emailProvider = email.NewResendProvider(cfg.ResendAPIKey, cfg.EmailFrom, observability.NewHTTPClient(emailHTTPTimeout))
	}

	reconciliation := services.NewReconciliationService(services.ReconciliationDeps{
		Orders:    orders,
		Gateway:   newGateway(cfg, profile),
		Profile:   profile,
		Sync:      syncNotifier,
		Emailer:   services.NewOrderConfirmationEmailer(emailProvider, cfg.TrackOrderURL),
		Publisher: publisher,
		Logger:    logger.With("component", "reconciliation_service"),
	})
	webhooks := services.NewWebhookService(services.WebhookDeps{
		Orders:    orders,
		Cache:     a.CacheProvider,
		Secret:    cfg.PaymentWebhookSecret,
		Sync:      syncNotifier,
		Publisher: publisher,
		Logger:    logger.With("component", "webhook_service"),
	})

	var pinger handlers.Pinger
	if a.DB != nil {
		pinger = a.DB
	}
	a.Handlers, err = handlers.New(handlers.Dependencies{
		Config:   cfg,
		DB:       pinger,
		Orders:   reconciliation,
		Webhooks: webhooks,
		Tokens:   auth.NewTokenVerifier(cfg.JWTSecret),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	return nil
}

func (a *App) openOrderStore(ctx context.Context) (services.OrderRepository, error) {
	if a.Config.OrderStore == "memory" {
		a.Logger.Warn("using in-memory order store, orders are lost on restart")
		return db.NewMemoryOrderStore(), nil
	}

	pool, err := db.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.DB = pool
	if err := db.Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return db.NewOrderStore(pool), nil
}

// newGateway layers the payment adapters: Stripe for cards when configured,
// the simulated provider for everything else, all bounded by GATEWAY_TIMEOUT.
func newGateway(cfg *config.Config, profile *catalog.Profile) payments.Gateway {
	var gateway payments.Gateway = payments.NewSimulatedGateway(
		payments.WithCardWeights(profile.Gateway.CardWeights),
		payments.WithVerifySuccessRate(profile.Gateway.VerifySuccessRate),
		payments.WithVirtualAccount(profile.Gateway.VirtualAccount),
	)
	if cfg.StripeSecretKey != "" {
		gateway = stripe.NewCardGateway(cfg.StripeSecretKey, gateway)
	}
	return payments.NewTimeoutGateway(gateway, cfg.GatewayTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.AnalyticsDB != nil {
		a.AnalyticsDB.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}

func initSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		EnableTracing:    true,
		TracesSampleRate: cfg.SentrySampleRate,
		EnableLogs:       true,
	}); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return nil
}

// newLogger writes to stdout and, when Sentry is configured, forwards warnings
// as logs and errors as events.
func newLogger(cfg *config.Config) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if cfg.SentryDSN == "" {
		return slog.New(console)
	}
	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn},
	}.NewSentryHandler(context.Background())
	return slog.New(logging.MultiHandler(console, sentryHandler))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
