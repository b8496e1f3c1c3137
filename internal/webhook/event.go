package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeIgnored Outcome = "ignored"
)

const (
	TargetOrder        = "order"
	TargetSubscription = "subscription"
)

var (
	successStatuses = map[string]struct{}{
		"success": {}, "paid": {}, "succeeded": {}, "captured": {},
	}
	failureStatuses = map[string]struct{}{
		"failed": {}, "failure": {}, "declined": {}, "cancelled": {}, "canceled": {}, "expired": {}, "error": {},
	}
	legacyObjectID = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// Event is the provider independent view of an inbound payment notification.
type Event struct {
	Provider          string `json:"provider"`
	PaymentStatus     string `json:"payment_status"`
	MerchantReference string `json:"merchant_reference"`
	TransactionID     string `json:"transaction_id"`
	AmountCents       int64  `json:"amount_cents"`
	HasAmount         bool   `json:"-"`
	TargetType        string `json:"target_type"`
	OrderID           string `json:"order_id,omitempty"`
}

func (e Event) Outcome() Outcome {
	status := strings.ToLower(strings.TrimSpace(e.PaymentStatus))
	if _, ok := successStatuses[status]; ok {
		return OutcomeSuccess
	}
	if _, ok := failureStatuses[status]; ok {
		return OutcomeFailure
	}
	return OutcomeIgnored
}

// TargetsOrder reports whether the event is about an order rather than some
// other billable object.
func (e Event) TargetsOrder() bool {
	return e.TargetType == "" || e.TargetType == TargetOrder
}

// ParsedOrderID returns the embedded order id when it is a valid uuid.
func (e Event) ParsedOrderID() (uuid.UUID, bool) {
	if e.OrderID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(e.OrderID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Canonicalize extracts an Event from a provider payload using the field
// aliases the provider has used over time.
func Canonicalize(provider string, payload []byte) (Event, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		return Event{}, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if body == nil {
		return Event{}, fmt.Errorf("webhook payload must be a JSON object")
	}

	event := Event{
		Provider:          provider,
		PaymentStatus:     strings.ToLower(firstString(body, "payment_status", "status", "paymentStatus", "event_status")),
		MerchantReference: firstString(body, "merchant_reference", "merchantReference", "reference"),
		TransactionID:     firstString(body, "transaction_id", "transactionId", "id"),
		TargetType:        firstString(body, "target_type"),
		OrderID:           firstString(body, "order_id", "orderId"),
	}

	if metadata, ok := body["metadata"].(map[string]any); ok {
		if event.TargetType == "" && stringValue(metadata["type"]) == TargetSubscription {
			event.TargetType = TargetSubscription
		}
		if event.OrderID == "" {
			event.OrderID = stringValue(metadata["order_id"])
		}
	}
	if event.TargetType == "" {
		event.TargetType = TargetOrder
	}
	if event.OrderID == "" && legacyObjectID.MatchString(event.MerchantReference) {
		event.OrderID = event.MerchantReference
	}

	for _, key := range []string{"amount", "total"} {
		if cents, ok := amountCents(body[key]); ok {
			event.AmountCents = cents
			event.HasAmount = true
			break
		}
	}

	return event, nil
}

func firstString(body map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := stringValue(body[key]); value != "" {
			return value
		}
	}
	return ""
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// amountCents converts a major-unit amount into minor units.
func amountCents(value any) (int64, bool) {
	raw := stringValue(value)
	if raw == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	return int64(math.Round(amount * 100)), true
}
