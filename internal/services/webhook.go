package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/smartapp/orderpay/internal/cache"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/logging"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/observability"
	"github.com/smartapp/orderpay/internal/webhook"
)

const (
	ProviderKashier = "kashier"
	ProviderStripe  = "stripe"

	componentWebhook = "webhook"

	webhookSaveAttempts = 3
)

// Webhook result states reported back to the provider.
const (
	WebhookApplied          = "applied"
	WebhookAlreadyProcessed = "already_processed"
	WebhookIgnored          = "ignored"
	WebhookOrderNotFound    = "order_not_found"
	WebhookRejected         = "rejected"
	WebhookInvalidPayload   = "invalid_payload"
)

type WebhookResult struct {
	Status        string               `json:"status"`
	Message       string               `json:"message,omitempty"`
	OrderID       string               `json:"order_id,omitempty"`
	OrderNumber   string               `json:"order_number,omitempty"`
	OrderStatus   models.OrderStatus   `json:"order_status,omitempty"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
}

// Succeeded reports whether the delivery reached a state the provider does not
// need to hear about again.
func (r *WebhookResult) Succeeded() bool {
	switch r.Status {
	case WebhookApplied, WebhookAlreadyProcessed, WebhookIgnored:
		return true
	default:
		return false
	}
}

type WebhookService struct {
	orders    OrderRepository
	cache     cache.Provider
	secret    string
	cacheTTL  time.Duration
	sync      SyncNotifier
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

type WebhookDeps struct {
	Orders    OrderRepository
	Cache     cache.Provider
	Secret    string
	Sync      SyncNotifier
	Publisher EventPublisher
	Logger    *slog.Logger
}

func NewWebhookService(deps WebhookDeps) *WebhookService {
	s := &WebhookService{
		orders:    deps.Orders,
		cache:     deps.Cache,
		secret:    deps.Secret,
		cacheTTL:  cache.DefaultWebhookTTL,
		sync:      deps.Sync,
		publisher: deps.Publisher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    deps.Logger,
	}
	if s.sync == nil {
		s.sync = noopSyncNotifier{}
	}
	if s.publisher == nil {
		s.publisher = noopEventPublisher{}
	}
	return s
}

func (s *WebhookService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger).With("component", componentWebhook)
}

// HandlePaymentWebhook verifies a signed provider delivery and applies it. The
// only error that means "reject the delivery" is webhook.ErrUnverifiedWebhook;
// any other error is an infrastructure failure the provider should retry.
func (s *WebhookService) HandlePaymentWebhook(ctx context.Context, provider string, payload []byte, signature string) (_ *WebhookResult, err error) {
	span := sentry.StartSpan(
		ctx,
		"service.webhook.handle_payment_webhook",
		sentry.WithOpName("service.webhook"),
		sentry.WithDescription("HandlePaymentWebhook"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.ComponentMeter(ctx, componentWebhook, attribute.String("provider", provider))

	if err := webhook.Verify(payload, signature, s.secret); err != nil {
		meter.Count("webhook.rejected", 1)
		logger.Warn("payment webhook rejected", "error", err, "provider", provider)
		return nil, err
	}

	event, err := webhook.Canonicalize(provider, payload)
	if err != nil {
		logger.Warn("payment webhook payload could not be read", "error", err, "provider", provider)
		return &WebhookResult{Status: WebhookInvalidPayload, Message: "Payload is not a JSON object"}, nil
	}

	return s.ProcessEvent(ctx, event, cache.WebhookKey(provider, cache.PayloadDigest(payload)))
}

// ProcessEvent applies a verified canonical event. dedupeKey identifies the
// delivery in the cache; the durable guard is the order's WebhookProcessedAt.
func (s *WebhookService) ProcessEvent(ctx context.Context, event webhook.Event, dedupeKey string) (*WebhookResult, error) {
	logger := s.loggerFromContext(ctx).With("provider", event.Provider, "merchant_reference", event.MerchantReference)
	meter := observability.ComponentMeter(ctx, componentWebhook, attribute.String("provider", event.Provider))
	recordOutcome := func(status string) {
		meter.Count("webhook.processed", 1, sentry.WithAttributes(
			attribute.String("status", status),
		))
	}

	if s.seen(ctx, dedupeKey) {
		recordOutcome(WebhookAlreadyProcessed)
		return &WebhookResult{Status: WebhookAlreadyProcessed, Message: "Duplicate delivery"}, nil
	}

	if !event.TargetsOrder() {
		recordOutcome(WebhookIgnored)
		logger.Info("ignoring webhook for non-order target", "target_type", event.TargetType)
		return &WebhookResult{Status: WebhookIgnored, Message: fmt.Sprintf("Target %s is not handled", event.TargetType)}, nil
	}

	var result models.WebhookResult
	switch event.Outcome() {
	case webhook.OutcomeSuccess:
		result = models.WebhookSucceeded
	case webhook.OutcomeFailure:
		result = models.WebhookFailed
	default:
		recordOutcome(WebhookIgnored)
		logger.Info("ignoring webhook with unhandled payment status", "payment_status", event.PaymentStatus)
		return &WebhookResult{Status: WebhookIgnored, Message: fmt.Sprintf("Payment status %q is not handled", event.PaymentStatus)}, nil
	}

	for attempt := 1; ; attempt++ {
		order, err := s.resolveOrder(ctx, event)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				recordOutcome(WebhookOrderNotFound)
				logger.Warn("webhook target order not found", "order_id", event.OrderID)
				return &WebhookResult{Status: WebhookOrderNotFound, Message: "Order not found"}, nil
			}
			return nil, fmt.Errorf("failed to resolve webhook order: %w", err)
		}

		if event.HasAmount && event.AmountCents != order.AmountDueCents {
			meter.Count("webhook.amount_mismatch", 1)
			logger.Warn("webhook amount does not match order",
				"order_id", order.ID,
				"webhook_amount_cents", event.AmountCents,
				"amount_due_cents", order.AmountDueCents,
			)
		}

		applied, err := order.ApplyWebhookEvent(result, event.TransactionID, s.now())
		if err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				recordOutcome(WebhookRejected)
				logger.Warn("webhook outcome conflicts with order state", "error", err, "order_id", order.ID)
				return resultFor(WebhookRejected, err.Error(), order), nil
			}
			return nil, fmt.Errorf("failed to apply webhook: %w", err)
		}
		if !applied {
			recordOutcome(WebhookAlreadyProcessed)
			s.remember(ctx, dedupeKey)
			return resultFor(WebhookAlreadyProcessed, "Webhook already processed", order), nil
		}

		if err := s.orders.Save(ctx, order); err != nil {
			if errors.Is(err, db.ErrConcurrencyConflict) && attempt < webhookSaveAttempts {
				logger.Info("webhook save lost a race, reloading", "order_id", order.ID, "attempt", attempt)
				continue
			}
			return nil, fmt.Errorf("failed to save webhook result: %w", err)
		}

		recordOutcome(WebhookApplied)
		logger.Info("webhook applied",
			"order_id", order.ID,
			"payment_status", order.PaymentStatus,
			"status", order.Status,
		)
		s.remember(ctx, dedupeKey)
		if err := s.publisher.PublishOrderEvent(ctx, EventOrderPaymentUpdated, order); err != nil {
			logger.Warn("failed to publish order event", "error", err, "order_id", order.ID)
		}
		if err := s.sync.NotifyOrder(ctx, order); err != nil {
			meter.Count("order.sync.failed", 1)
			logger.Error("external sync failed", "error", err, "order_id", order.ID)
		}
		return resultFor(WebhookApplied, order.PaymentMessage, order), nil
	}
}

// resolveOrder prefers the embedded order id and falls back to the merchant
// reference.
func (s *WebhookService) resolveOrder(ctx context.Context, event webhook.Event) (*models.Order, error) {
	if orderID, ok := event.ParsedOrderID(); ok {
		order, err := s.orders.GetByID(ctx, orderID)
		if err == nil || !errors.Is(err, db.ErrNotFound) || event.MerchantReference == "" {
			return order, err
		}
	}
	if event.MerchantReference == "" {
		return nil, db.ErrNotFound
	}
	return s.orders.GetByReference(ctx, event.MerchantReference)
}

func (s *WebhookService) seen(ctx context.Context, key string) bool {
	if s.cache == nil || key == "" {
		return false
	}
	_, err := s.cache.Get(ctx, key)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.loggerFromContext(ctx).Warn("webhook cache lookup failed", "error", err)
	}
	return false
}

func (s *WebhookService) remember(ctx context.Context, key string) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Set(ctx, key, s.now().Format(time.RFC3339), s.cacheTTL); err != nil {
		s.loggerFromContext(ctx).Warn("failed to cache webhook delivery", "error", err)
	}
}

func resultFor(status, message string, order *models.Order) *WebhookResult {
	return &WebhookResult{
		Status:        status,
		Message:       message,
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
	}
}
