package services

import (
	"context"
	"errors"
	"time"

	"github.com/smartapp/orderpay/internal/email"
	"github.com/smartapp/orderpay/internal/models"
)

const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderPaymentUpdated = "order.payment_updated"
	EventOrderDeleted        = "order.deleted"
)

// SyncNotifier mirrors the full order snapshot into a secondary store.
type SyncNotifier interface {
	NotifyOrder(ctx context.Context, order *models.Order) error
}

// ConfirmationEmailer sends the order confirmation. Failures are reported in
// the result, never as an error.
type ConfirmationEmailer interface {
	SendConfirmation(ctx context.Context, order *models.Order) models.EmailResult
}

// EventPublisher pushes order changes to live dashboards.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) error
}

type noopSyncNotifier struct{}

func (noopSyncNotifier) NotifyOrder(context.Context, *models.Order) error { return nil }

type noopEventPublisher struct{}

func (noopEventPublisher) PublishOrderEvent(context.Context, string, *models.Order) error {
	return nil
}

type noopConfirmationEmailer struct{}

func (noopConfirmationEmailer) SendConfirmation(context.Context, *models.Order) models.EmailResult {
	return models.EmailResult{Status: models.EmailFailed, Error: "Email provider is not configured"}
}

// OrderConfirmationEmailer renders the confirmation template and hands it to
// an email provider.
type OrderConfirmationEmailer struct {
	provider     email.Provider
	trackBaseURL string
	now          func() time.Time
}

func NewOrderConfirmationEmailer(provider email.Provider, trackBaseURL string) *OrderConfirmationEmailer {
	if provider == nil {
		provider = email.DisabledProvider{}
	}
	return &OrderConfirmationEmailer{
		provider:     provider,
		trackBaseURL: trackBaseURL,
		now:          time.Now,
	}
}

func (e *OrderConfirmationEmailer) SendConfirmation(ctx context.Context, order *models.Order) models.EmailResult {
	if order == nil || order.UserEmail == "" {
		return models.EmailResult{Status: models.EmailFailed, Error: "Recipient email not found"}
	}

	info := email.BuildOrderInfo(order, "", e.trackBaseURL)
	sent, err := email.SendOrderConfirmation(ctx, e.provider, info)
	if err != nil {
		message := err.Error()
		if errors.Is(err, email.ErrNotConfigured) {
			message = "Email provider is not configured"
		}
		return models.EmailResult{Status: models.EmailFailed, Error: message}
	}

	result := models.EmailResult{
		Success: true,
		Status:  models.EmailSent,
		SentAt:  e.now().UTC(),
	}
	if sent != nil {
		result.ProviderMessageID = sent.MessageID
	}
	return result
}
