package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusPaid           OrderStatus = "paid"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusReadyForPickup OrderStatus = "ready_for_pickup"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending          PaymentStatus = "pending"
	PaymentPaid             PaymentStatus = "paid"
	PaymentFailed           PaymentStatus = "failed"
	PaymentAwaitingTransfer PaymentStatus = "awaiting_transfer"
	PaymentRefunded         PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCOD          PaymentMethod = "cod"
	MethodCard         PaymentMethod = "card"
	MethodMobileWallet PaymentMethod = "mobile_wallet"
	MethodFawry        PaymentMethod = "fawry"
	MethodInstapay     PaymentMethod = "instapay"
	MethodWallet       PaymentMethod = "wallet"
)

// IsTransfer reports whether the method settles through an out-of-band transfer
// that must be verified later.
func (m PaymentMethod) IsTransfer() bool {
	return m == MethodInstapay || m == MethodFawry
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodCard, MethodMobileWallet, MethodFawry, MethodInstapay, MethodWallet:
		return true
	default:
		return false
	}
}

type EmailDeliveryStatus string

const (
	EmailPending EmailDeliveryStatus = "email_pending"
	EmailSent    EmailDeliveryStatus = "email_sent"
	EmailFailed  EmailDeliveryStatus = "email_failed"
)

type OrderItem struct {
	FoodID              string `json:"food_id"`
	Name                string `json:"name"`
	PortionName         string `json:"portion_name,omitempty"`
	Quantity            int    `json:"quantity"`
	UnitPriceCents      int64  `json:"unit_price_cents"`
	CustomizationsCents int64  `json:"customizations_cents"`
	TotalPriceCents     int64  `json:"total_price_cents"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type TimelineEntry struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Order struct {
	ID                     uuid.UUID           `json:"id"`
	OrderNumber            string              `json:"order_number"`
	UserID                 string              `json:"user_id"`
	UserEmail              string              `json:"user_email"`
	Items                  []OrderItem         `json:"items"`
	Status                 OrderStatus         `json:"status"`
	PaymentStatus          PaymentStatus       `json:"payment_status"`
	PaymentMethod          PaymentMethod       `json:"payment_method"`
	PaymentReference       string              `json:"payment_reference"`
	TransactionID          string              `json:"transaction_id"`
	PaymentTimestamp       time.Time           `json:"payment_timestamp"`
	PaymentMessage         string              `json:"payment_message"`
	ReferenceCode          string              `json:"reference_code,omitempty"`
	VirtualAccount         string              `json:"virtual_account,omitempty"`
	PaymentAttempts        int                 `json:"payment_attempts"`
	WebhookProcessedAt     time.Time           `json:"webhook_processed_at"`
	Timeline               []TimelineEntry     `json:"timeline"`
	EmailDeliveryStatus    EmailDeliveryStatus `json:"email_delivery_status"`
	EmailSentAt            time.Time           `json:"email_sent_at"`
	EmailError             string              `json:"email_error,omitempty"`
	EmailProviderMessageID string              `json:"email_provider_message_id,omitempty"`
	Currency               string              `json:"currency"`
	SubtotalCents          int64               `json:"subtotal_cents"`
	DeliveryFeeCents       int64               `json:"delivery_fee_cents"`
	DiscountCents          int64               `json:"discount_cents"`
	WalletUsedCents        int64               `json:"wallet_used_cents"`
	TotalCents             int64               `json:"total_cents"`
	AmountDueCents         int64               `json:"amount_due_cents"`
	PromoCode              string              `json:"promo_code,omitempty"`
	Version                int                 `json:"version"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

// WebhookApplied reports whether a terminal webhook outcome was already stored.
func (o *Order) WebhookApplied() bool {
	return o != nil && !o.WebhookProcessedAt.IsZero()
}

// Clone returns a deep copy so callers can mutate without touching a shared value.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	cp.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	return &cp
}
