package payments

import (
	"context"
	"errors"

	"github.com/smartapp/orderpay/internal/models"
)

var (
	// ErrAdapterUnavailable means the provider could not be reached or did not
	// answer in time. Callers treat it as "still processing", never as a decline.
	ErrAdapterUnavailable = errors.New("payment gateway unavailable")
	ErrUnsupportedMethod  = errors.New("payment method not supported by gateway")
)

const (
	MessageCOD              = "Your order will be paid upon delivery."
	MessageCardApproved     = "Payment approved."
	MessageCardFailed       = "Payment failed. Please retry."
	MessageCardProcessing   = "Payment processing..."
	MessageTransferPending  = "Transfer pending verification."
	MessageTransferVerified = "Transfer verified successfully."
	MessageTransferWaiting  = "Transfer could not be verified yet."
	MessageUnavailable      = "Payment provider is not responding. Payment is still processing."
)

type CardDetails struct {
	// Token is a provider payment method reference such as a Stripe pm_ id.
	Token      string `json:"token" validate:"required"`
	HolderName string `json:"holder_name,omitempty"`
	Last4      string `json:"last4,omitempty"`
}

type PaymentRequest struct {
	Method      models.PaymentMethod
	Reference   string
	Attempt     int
	AmountCents int64
	Currency    string
	Card        *CardDetails
}

// Gateway produces payment outcomes. It never mutates the order it is given.
type Gateway interface {
	AttemptInitialPayment(ctx context.Context, req PaymentRequest) (models.PaymentOutcome, error)
	VerifyPendingTransfer(ctx context.Context, order *models.Order) (models.PaymentOutcome, error)
}

// UnavailableOutcome is applied when a charge attempt could not be completed.
// The payment stays pending so a later provider confirmation can still land.
func UnavailableOutcome() models.PaymentOutcome {
	return models.PaymentOutcome{
		PaymentStatus: models.PaymentPending,
		OrderStatus:   models.StatusPending,
		Message:       MessageUnavailable,
	}
}

// StillAwaitingOutcome is applied when transfer verification could not reach
// the provider.
func StillAwaitingOutcome(order *models.Order) models.PaymentOutcome {
	return models.PaymentOutcome{
		PaymentStatus: models.PaymentAwaitingTransfer,
		OrderStatus:   order.Status,
		Message:       MessageTransferWaiting,
	}
}
