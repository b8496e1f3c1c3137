package models

import (
	"errors"
	"testing"
)

func TestValidateOrderTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr bool
	}{
		{name: "pending to confirmed", from: StatusPending, to: StatusConfirmed},
		{name: "pending to paid", from: StatusPending, to: StatusPaid},
		{name: "pending to cancelled", from: StatusPending, to: StatusCancelled},
		{name: "paid to confirmed", from: StatusPaid, to: StatusConfirmed},
		{name: "confirmed to preparing", from: StatusConfirmed, to: StatusPreparing},
		{name: "preparing to pickup", from: StatusPreparing, to: StatusReadyForPickup},
		{name: "pickup to delivery", from: StatusReadyForPickup, to: StatusOutForDelivery},
		{name: "out to delivered", from: StatusOutForDelivery, to: StatusDelivered},
		{name: "delivered to preparing", from: StatusDelivered, to: StatusPreparing, wantErr: true},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusPending, wantErr: true},
		{name: "paid cannot be cancelled", from: StatusPaid, to: StatusCancelled, wantErr: true},
		{name: "no skipping to delivered", from: StatusConfirmed, to: StatusDelivered, wantErr: true},
		{name: "self transition rejected", from: StatusPreparing, to: StatusPreparing, wantErr: true},
		{name: "unknown source", from: OrderStatus("lost"), to: StatusConfirmed, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateOrderTransition(tc.from, tc.to)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("ValidateOrderTransition(%s, %s) error = %v, want ErrInvalidTransition", tc.from, tc.to, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateOrderTransition(%s, %s) unexpected error: %v", tc.from, tc.to, err)
			}
		})
	}
}

func TestValidatePaymentTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		wantErr bool
	}{
		{name: "pending to paid", from: PaymentPending, to: PaymentPaid},
		{name: "pending to failed", from: PaymentPending, to: PaymentFailed},
		{name: "pending to awaiting transfer", from: PaymentPending, to: PaymentAwaitingTransfer},
		{name: "awaiting transfer re-verify", from: PaymentAwaitingTransfer, to: PaymentAwaitingTransfer},
		{name: "awaiting transfer to paid", from: PaymentAwaitingTransfer, to: PaymentPaid},
		{name: "paid to refunded", from: PaymentPaid, to: PaymentRefunded},
		{name: "failed to pending", from: PaymentFailed, to: PaymentPending},
		{name: "pending to refunded", from: PaymentPending, to: PaymentRefunded, wantErr: true},
		{name: "refunded to paid", from: PaymentRefunded, to: PaymentPaid, wantErr: true},
		{name: "failed to paid", from: PaymentFailed, to: PaymentPaid, wantErr: true},
		{name: "awaiting transfer to failed", from: PaymentAwaitingTransfer, to: PaymentFailed, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePaymentTransition(tc.from, tc.to)
			if tc.wantErr {
				var transitionErr *TransitionError
				if !errors.As(err, &transitionErr) {
					t.Fatalf("expected *TransitionError, got %v", err)
				}
				if transitionErr.From != string(tc.from) || transitionErr.To != string(tc.to) {
					t.Fatalf("TransitionError = %+v", transitionErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	t.Parallel()

	for _, status := range []OrderStatus{StatusDelivered, StatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	if StatusPending.Terminal() {
		t.Fatal("pending should not be terminal")
	}
	if OrderStatus("bogus").Valid() {
		t.Fatal("unknown status should be invalid")
	}
	if !PaymentAwaitingTransfer.Valid() {
		t.Fatal("awaiting_transfer should be valid")
	}
}
