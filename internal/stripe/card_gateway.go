// Package stripe charges cards through Stripe PaymentIntents.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/payments"
)

type paymentIntentCreator interface {
	Create(ctx context.Context, params *stripeapi.PaymentIntentCreateParams) (*stripeapi.PaymentIntent, error)
}

// CardGateway sends card charges to Stripe and hands every other method to a
// fallback gateway.
type CardGateway struct {
	intents  paymentIntentCreator
	fallback payments.Gateway
}

func NewCardGateway(secretKey string, fallback payments.Gateway) *CardGateway {
	client := stripeapi.NewClient(secretKey)
	return &CardGateway{
		intents:  client.V1PaymentIntents,
		fallback: fallback,
	}
}

func (g *CardGateway) AttemptInitialPayment(ctx context.Context, req payments.PaymentRequest) (models.PaymentOutcome, error) {
	if ctx == nil {
		return models.PaymentOutcome{}, fmt.Errorf("context is required")
	}
	if req.Method != models.MethodCard {
		return g.fallback.AttemptInitialPayment(ctx, req)
	}
	if req.Card == nil || strings.TrimSpace(req.Card.Token) == "" {
		return models.PaymentOutcome{
			PaymentStatus: models.PaymentFailed,
			OrderStatus:   models.StatusPending,
			Message:       "Card details are required.",
		}, nil
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "egp"
	}
	params := &stripeapi.PaymentIntentCreateParams{
		Amount:        stripeapi.Int64(req.AmountCents),
		Currency:      stripeapi.String(currency),
		PaymentMethod: stripeapi.String(req.Card.Token),
		Confirm:       stripeapi.Bool(true),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripeapi.Bool(true),
			AllowRedirects: stripeapi.String("never"),
		},
		Metadata: map[string]string{
			"payment_reference": req.Reference,
			"attempt":           fmt.Sprintf("%d", req.Attempt),
		},
	}
	params.SetIdempotencyKey(fmt.Sprintf("%s-%d", req.Reference, req.Attempt))

	intent, err := g.intents.Create(ctx, params)
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripeapi.ErrorTypeCard {
			message := stripeErr.Msg
			if message == "" {
				message = payments.MessageCardFailed
			}
			return models.PaymentOutcome{
				PaymentStatus: models.PaymentFailed,
				OrderStatus:   models.StatusPending,
				TransactionID: paymentIntentID(stripeErr),
				Message:       message,
			}, nil
		}
		return models.PaymentOutcome{}, fmt.Errorf("%w: failed to create payment intent: %v", payments.ErrAdapterUnavailable, err)
	}

	return OutcomeForIntent(intent), nil
}

func (g *CardGateway) VerifyPendingTransfer(ctx context.Context, order *models.Order) (models.PaymentOutcome, error) {
	return g.fallback.VerifyPendingTransfer(ctx, order)
}

// OutcomeForIntent maps a PaymentIntent status onto order and payment status.
func OutcomeForIntent(intent *stripeapi.PaymentIntent) models.PaymentOutcome {
	outcome := models.PaymentOutcome{TransactionID: intent.ID}
	switch intent.Status {
	case stripeapi.PaymentIntentStatusSucceeded:
		outcome.PaymentStatus = models.PaymentPaid
		outcome.OrderStatus = models.StatusConfirmed
		outcome.Message = payments.MessageCardApproved
	case stripeapi.PaymentIntentStatusRequiresPaymentMethod, stripeapi.PaymentIntentStatusCanceled:
		outcome.PaymentStatus = models.PaymentFailed
		outcome.OrderStatus = models.StatusPending
		outcome.Message = payments.MessageCardFailed
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			outcome.Message = intent.LastPaymentError.Msg
		}
	default:
		outcome.PaymentStatus = models.PaymentPending
		outcome.OrderStatus = models.StatusPending
		outcome.Message = payments.MessageCardProcessing
	}
	return outcome
}

func paymentIntentID(err *stripeapi.Error) string {
	if err.PaymentIntent != nil {
		return err.PaymentIntent.ID
	}
	return ""
}
