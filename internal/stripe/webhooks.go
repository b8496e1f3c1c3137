package stripe

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	stripewebhook "github.com/stripe/stripe-go/v84/webhook"

	"github.com/smartapp/orderpay/internal/webhook"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("%w: missing stripe signature header", webhook.ErrUnverifiedWebhook)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := stripewebhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrUnverifiedWebhook, err)
	}

	return &event, nil
}

// CanonicalEvent translates a PaymentIntent event into the provider
// independent form. The boolean is false for event types that carry no
// payment outcome.
func CanonicalEvent(event *stripeapi.Event) (webhook.Event, bool, error) {
	var status string
	switch string(event.Type) {
	case EventPaymentSucceeded:
		status = "succeeded"
	case EventPaymentFailed:
		status = "failed"
	case EventPaymentCanceled:
		status = "canceled"
	default:
		return webhook.Event{}, false, nil
	}
	if event.Data == nil {
		return webhook.Event{}, false, fmt.Errorf("stripe event %s has no data", event.ID)
	}

	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return webhook.Event{}, false, fmt.Errorf("failed to decode payment intent: %w", err)
	}

	return webhook.Event{
		Provider:          "stripe",
		PaymentStatus:     status,
		MerchantReference: intent.Metadata["payment_reference"],
		TransactionID:     intent.ID,
		AmountCents:       intent.Amount,
		HasAmount:         true,
		TargetType:        webhook.TargetOrder,
		OrderID:           intent.Metadata["order_id"],
	}, true, nil
}
