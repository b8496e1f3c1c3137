package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartapp/orderpay/internal/models"
)

const DefaultTimeout = 10 * time.Second

// TimeoutGateway bounds every call to the wrapped gateway. A call that does not
// return in time is reported as ErrAdapterUnavailable even if the wrapped
// gateway ignores its context.
type TimeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

func NewTimeoutGateway(next Gateway, timeout time.Duration) *TimeoutGateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutGateway{next: next, timeout: timeout}
}

type gatewayResult struct {
	outcome models.PaymentOutcome
	err     error
}

func (g *TimeoutGateway) AttemptInitialPayment(ctx context.Context, req PaymentRequest) (models.PaymentOutcome, error) {
	return g.call(ctx, func(ctx context.Context) (models.PaymentOutcome, error) {
		return g.next.AttemptInitialPayment(ctx, req)
	})
}

func (g *TimeoutGateway) VerifyPendingTransfer(ctx context.Context, order *models.Order) (models.PaymentOutcome, error) {
	snapshot := order.Clone()
	return g.call(ctx, func(ctx context.Context) (models.PaymentOutcome, error) {
		return g.next.VerifyPendingTransfer(ctx, snapshot)
	})
}

func (g *TimeoutGateway) call(ctx context.Context, fn func(context.Context) (models.PaymentOutcome, error)) (models.PaymentOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan gatewayResult, 1)
	go func() {
		outcome, err := fn(ctx)
		done <- gatewayResult{outcome: outcome, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return models.PaymentOutcome{}, classify(res.err)
		}
		return res.outcome, nil
	case <-ctx.Done():
		return models.PaymentOutcome{}, fmt.Errorf("%w: %v", ErrAdapterUnavailable, ctx.Err())
	}
}

func classify(err error) error {
	if errors.Is(err, ErrAdapterUnavailable) || errors.Is(err, ErrUnsupportedMethod) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
}
