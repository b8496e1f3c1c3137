package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/smartapp/orderpay/internal/cache"
	"github.com/smartapp/orderpay/internal/services"
	stripewebhook "github.com/smartapp/orderpay/internal/stripe"
	"github.com/smartapp/orderpay/internal/webhook"
)

// PaymentWebhook returns the handler for HMAC-signed gateway notifications.
// Verification failures get 400; anything the service could process gets 200
// with success reporting whether the delivery settled; storage failures get 500
// so the provider retries.
func (h *Handlers) PaymentWebhook(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := h.loggerFromContext(ctx).With("provider", provider)
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Warn("failed to read webhook payload", "error", err)
			writeMessage(w, http.StatusBadRequest, "Invalid webhook payload")
			return
		}

		result, err := h.webhooks.HandlePaymentWebhook(ctx, provider, payload, webhook.SignatureFromHeader(r.Header))
		if err != nil {
			if errors.Is(err, webhook.ErrUnverifiedWebhook) {
				writeMessage(w, http.StatusBadRequest, "Invalid webhook signature")
				return
			}
			logger.Error("failed to process payment webhook", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Webhook processing failed")
			return
		}

		writeJSON(w, http.StatusOK, envelope{Success: result.Succeeded(), Data: result})
	}
}

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx).With("provider", services.ProviderStripe)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := stripewebhook.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		logger.Warn("failed to read Stripe webhook payload", "error", err)
		writeMessage(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}
	if event.ID == "" {
		logger.Warn("missing Stripe event ID")
		writeMessage(w, http.StatusBadRequest, "Missing event ID")
		return
	}

	canonical, ok, err := stripewebhook.CanonicalEvent(event)
	if err != nil {
		logger.Warn("failed to decode Stripe event", "error", err, "event_id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, envelope{Success: false, Data: &services.WebhookResult{
			Status:  services.WebhookInvalidPayload,
			Message: "Event data could not be decoded",
		}})
		return
	}
	if !ok {
		logger.Debug("ignoring Stripe event", "event_id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: &services.WebhookResult{
			Status:  services.WebhookIgnored,
			Message: "Event type is not handled",
		}})
		return
	}

	result, err := h.webhooks.ProcessEvent(ctx, canonical, cache.WebhookKey(services.ProviderStripe, event.ID))
	if err != nil {
		logger.Error("failed to process Stripe webhook", "error", err, "event_id", event.ID, "type", event.Type)
		writeMessage(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: result.Succeeded(), Data: result})
}
