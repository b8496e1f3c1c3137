package models

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError describes a rejected status change. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	Kind string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Kind, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusPaid},
	StatusPaid:           {StatusConfirmed},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReadyForPickup, StatusOutForDelivery},
	StatusReadyForPickup: {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:          {PaymentPaid, PaymentFailed, PaymentAwaitingTransfer},
	PaymentAwaitingTransfer: {PaymentPaid, PaymentAwaitingTransfer},
	PaymentPaid:             {PaymentRefunded},
	PaymentFailed:           {PaymentPending},
	PaymentRefunded:         {},
}

func CanTransitionOrder(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateOrderTransition(from, to OrderStatus) error {
	if !CanTransitionOrder(from, to) {
		return &TransitionError{Kind: "order status", From: string(from), To: string(to)}
	}
	return nil
}

func ValidatePaymentTransition(from, to PaymentStatus) error {
	if !CanTransitionPayment(from, to) {
		return &TransitionError{Kind: "payment status", From: string(from), To: string(to)}
	}
	return nil
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}
