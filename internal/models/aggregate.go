package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleSupportAdmin = "SUPPORT_ADMIN"
	RoleKitchenAdmin = "KITCHEN_ADMIN"
	RoleCustomer     = "CUSTOMER"
	RoleSystem       = "SYSTEM"
)

// Actor identifies who requested a state change. Authorization happens before
// the aggregate is touched; the aggregate only records the actor.
type Actor struct {
	ID   string
	Role string
}

// Label names the actor in timeline messages.
func (a Actor) Label() string {
	if strings.TrimSpace(a.Role) != "" {
		return a.Role
	}
	if strings.TrimSpace(a.ID) != "" {
		return a.ID
	}
	return "system"
}

// PaymentOutcome is what a gateway reports for a charge attempt or a transfer
// verification. It carries data only.
type PaymentOutcome struct {
	PaymentStatus  PaymentStatus
	OrderStatus    OrderStatus
	TransactionID  string
	Message        string
	ReferenceCode  string
	VirtualAccount string
}

type WebhookResult string

const (
	WebhookSucceeded WebhookResult = "success"
	WebhookFailed    WebhookResult = "failure"
)

type EmailResult struct {
	Success           bool
	Status            EmailDeliveryStatus
	ProviderMessageID string
	Error             string
	SentAt            time.Time
}

// NewOrder returns an order in the initial pending/pending state with a single
// creation entry on the timeline.
func NewOrder(method PaymentMethod, reference string, now time.Time) *Order {
	return &Order{
		Status:              StatusPending,
		PaymentStatus:       PaymentPending,
		PaymentMethod:       method,
		PaymentReference:    reference,
		EmailDeliveryStatus: EmailPending,
		Timeline: []TimelineEntry{{
			Status:    string(StatusPending),
			Message:   "Order placed",
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyPaymentOutcome moves the order to the statuses reported by the gateway.
// Both targets are validated before anything is written.
func (o *Order) ApplyPaymentOutcome(outcome PaymentOutcome, reason string, now time.Time) error {
	if outcome.PaymentStatus == "" || outcome.OrderStatus == "" {
		return fmt.Errorf("payment outcome is incomplete")
	}
	if outcome.PaymentStatus != o.PaymentStatus {
		if err := ValidatePaymentTransition(o.PaymentStatus, outcome.PaymentStatus); err != nil {
			return err
		}
	}
	if outcome.OrderStatus != o.Status {
		if err := ValidateOrderTransition(o.Status, outcome.OrderStatus); err != nil {
			return err
		}
	}

	o.setPaymentStatus(outcome.PaymentStatus, now)
	o.Status = outcome.OrderStatus
	if outcome.TransactionID != "" {
		o.TransactionID = outcome.TransactionID
	}
	if outcome.ReferenceCode != "" {
		o.ReferenceCode = outcome.ReferenceCode
	}
	if outcome.VirtualAccount != "" {
		o.VirtualAccount = outcome.VirtualAccount
	}
	o.PaymentMessage = outcome.Message
	o.PaymentAttempts++

	message := outcome.Message
	if reason != "" {
		message = reason + ": " + outcome.Message
	}
	o.appendTimeline(string(o.Status), message, now)
	return nil
}

// RetryPayment reopens a failed payment so a new charge attempt can be applied.
func (o *Order) RetryPayment(actor Actor, now time.Time) error {
	if err := ValidatePaymentTransition(o.PaymentStatus, PaymentPending); err != nil {
		return err
	}
	o.PaymentStatus = PaymentPending
	o.appendTimeline(string(o.Status), fmt.Sprintf("Payment retry requested by %s", actor.Label()), now)
	return nil
}

// OverridePaymentStatus is the admin path for payment status changes. It uses
// the same table as every other writer.
func (o *Order) OverridePaymentStatus(next PaymentStatus, actor Actor, now time.Time) error {
	if err := ValidatePaymentTransition(o.PaymentStatus, next); err != nil {
		return err
	}
	confirm := next == PaymentPaid && o.Status == StatusPending
	if confirm {
		if err := ValidateOrderTransition(o.Status, StatusConfirmed); err != nil {
			return err
		}
	}

	o.setPaymentStatus(next, now)
	if confirm {
		o.Status = StatusConfirmed
	}
	o.appendTimeline(string(o.Status), fmt.Sprintf("Payment status manually set to %s by %s", next, actor.Label()), now)
	return nil
}

func (o *Order) AdvanceOrderStatus(next OrderStatus, actor Actor, now time.Time) error {
	if next == StatusCancelled {
		return o.Cancel(actor, now)
	}
	if err := ValidateOrderTransition(o.Status, next); err != nil {
		return err
	}
	o.Status = next
	o.appendTimeline(string(next), fmt.Sprintf("Status updated by %s", actor.Label()), now)
	return nil
}

// Cancel cancels the order. A payment that never settled is marked failed in
// the same step.
func (o *Order) Cancel(actor Actor, now time.Time) error {
	if err := ValidateOrderTransition(o.Status, StatusCancelled); err != nil {
		return err
	}
	failPayment := o.PaymentStatus == PaymentPending
	if failPayment {
		if err := ValidatePaymentTransition(o.PaymentStatus, PaymentFailed); err != nil {
			return err
		}
	}

	o.Status = StatusCancelled
	if failPayment {
		o.PaymentStatus = PaymentFailed
	}
	o.appendTimeline(string(StatusCancelled), fmt.Sprintf("Order cancelled by %s", actor.Label()), now)
	return nil
}

// Refund moves the payment to refunded. Kitchen and delivery state are left
// as they are.
func (o *Order) Refund(actor Actor, now time.Time) error {
	if err := ValidatePaymentTransition(o.PaymentStatus, PaymentRefunded); err != nil {
		return err
	}
	o.setPaymentStatus(PaymentRefunded, now)
	o.appendTimeline(string(o.Status), fmt.Sprintf("Refunded by %s", actor.Label()), now)
	return nil
}

// ApplyWebhookEvent applies a verified provider event and stamps
// WebhookProcessedAt. It returns false when the order already carries a webhook
// outcome, in which case nothing is changed.
func (o *Order) ApplyWebhookEvent(result WebhookResult, transactionID string, now time.Time) (bool, error) {
	if o.WebhookApplied() {
		return false, nil
	}

	var (
		nextPayment PaymentStatus
		nextOrder   = o.Status
		message     string
	)
	switch result {
	case WebhookSucceeded:
		nextPayment = PaymentPaid
		if o.Status == StatusPending {
			nextOrder = StatusPaid
		}
		message = "Payment confirmed by provider"
	case WebhookFailed:
		nextPayment = PaymentFailed
		if o.Status == StatusPending {
			nextOrder = StatusCancelled
		}
		message = "Payment declined by provider"
	default:
		return false, fmt.Errorf("unknown webhook result %q", result)
	}

	paymentChanged := nextPayment != o.PaymentStatus
	if paymentChanged {
		if err := ValidatePaymentTransition(o.PaymentStatus, nextPayment); err != nil {
			return false, err
		}
	}
	orderChanged := nextOrder != o.Status
	if orderChanged {
		if err := ValidateOrderTransition(o.Status, nextOrder); err != nil {
			return false, err
		}
	}

	if paymentChanged || orderChanged {
		o.setPaymentStatus(nextPayment, now)
		o.Status = nextOrder
		if transactionID != "" {
			o.TransactionID = transactionID
		}
		o.PaymentMessage = message
		o.appendTimeline(string(o.Status), message, now)
	}
	o.WebhookProcessedAt = now
	o.UpdatedAt = now
	return true, nil
}

// RecordEmailResult stores the outcome of a confirmation email. Order and
// payment status are not touched.
func (o *Order) RecordEmailResult(result EmailResult, now time.Time) {
	status := result.Status
	if status == "" {
		status = EmailFailed
		if result.Success {
			status = EmailSent
		}
	}
	o.EmailDeliveryStatus = status
	o.EmailError = result.Error
	o.EmailProviderMessageID = result.ProviderMessageID
	if result.Success {
		sentAt := result.SentAt
		if sentAt.IsZero() {
			sentAt = now
		}
		o.EmailSentAt = sentAt
	} else {
		o.EmailSentAt = time.Time{}
	}
	o.UpdatedAt = now
}

// AddNote appends an informational timeline entry without changing status.
func (o *Order) AddNote(message string, now time.Time) {
	o.appendTimeline(string(o.Status), message, now)
}

func (o *Order) setPaymentStatus(next PaymentStatus, now time.Time) {
	if next != o.PaymentStatus && (next == PaymentPaid || next == PaymentRefunded) {
		o.PaymentTimestamp = now
	}
	o.PaymentStatus = next
}

func (o *Order) appendTimeline(status, message string, now time.Time) {
	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:    status,
		Message:   message,
		Timestamp: now,
	})
	o.UpdatedAt = now
}
