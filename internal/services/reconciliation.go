package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/smartapp/orderpay/internal/catalog"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/logging"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/observability"
	"github.com/smartapp/orderpay/internal/payments"
)

const (
	componentReconciliation = "reconciliation"

	emailSaveAttempts = 3
	orderSaveAttempts = 3
)

type orderPricer interface {
	ComputeTotals(profile *catalog.Profile, items []catalog.CartItem, promoCode string, walletCents int64) (catalog.Totals, error)
	LineTotal(item catalog.CartItem) int64
}

type ReconciliationDeps struct {
	Orders    OrderRepository
	Gateway   payments.Gateway
	Pricer    orderPricer
	Profile   *catalog.Profile
	Sync      SyncNotifier
	Emailer   ConfirmationEmailer
	Publisher EventPublisher
	Logger    *slog.Logger
}

// ReconciliationService owns every state change of an order. Each operation
// loads the order fresh, applies one aggregate operation and saves it with a
// version check.
type ReconciliationService struct {
	orders       OrderRepository
	gateway      payments.Gateway
	pricer       orderPricer
	profile      *catalog.Profile
	sync         SyncNotifier
	emailer      ConfirmationEmailer
	publisher    EventPublisher
	validate     *validator.Validate
	newReference func() string
	now          func() time.Time
	logger       *slog.Logger
}

func NewReconciliationService(deps ReconciliationDeps) *ReconciliationService {
	s := &ReconciliationService{
		orders:       deps.Orders,
		gateway:      deps.Gateway,
		pricer:       deps.Pricer,
		profile:      deps.Profile,
		sync:         deps.Sync,
		emailer:      deps.Emailer,
		publisher:    deps.Publisher,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		newReference: newPaymentReference,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       deps.Logger,
	}
	if s.pricer == nil {
		s.pricer = catalog.NewPricer()
	}
	if s.profile == nil {
		s.profile = catalog.DefaultProfile()
	}
	if s.sync == nil {
		s.sync = noopSyncNotifier{}
	}
	if s.emailer == nil {
		s.emailer = noopConfirmationEmailer{}
	}
	if s.publisher == nil {
		s.publisher = noopEventPublisher{}
	}
	return s
}

func newPaymentReference() string {
	return "order_" + strings.ToLower(ulid.Make().String())
}

func (s *ReconciliationService) meter(ctx context.Context) sentry.Meter {
	return observability.ComponentMeter(ctx, componentReconciliation)
}

func (s *ReconciliationService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger).With("component", componentReconciliation)
}

type Customer struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Name  string `json:"name"`
}

type CreateOrderInput struct {
	Customer      Customer              `json:"customer"`
	Items         []catalog.CartItem    `json:"items" validate:"required,min=1,max=50,dive"`
	PaymentMethod models.PaymentMethod  `json:"payment_method" validate:"required"`
	PromoCode     string                `json:"promo_code,omitempty" validate:"max=32"`
	WalletCents   int64                 `json:"wallet_cents,omitempty" validate:"gte=0"`
	Card          *payments.CardDetails `json:"card,omitempty"`
}

// PaymentPresentation is what the customer needs to complete or follow a
// payment.
type PaymentPresentation struct {
	Method         models.PaymentMethod `json:"method"`
	Status         models.PaymentStatus `json:"status"`
	Message        string               `json:"message"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	ReferenceCode  string               `json:"reference_code,omitempty"`
	VirtualAccount string               `json:"virtual_account,omitempty"`
}

func presentPayment(order *models.Order) PaymentPresentation {
	return PaymentPresentation{
		Method:         order.PaymentMethod,
		Status:         order.PaymentStatus,
		Message:        order.PaymentMessage,
		TransactionID:  order.TransactionID,
		ReferenceCode:  order.ReferenceCode,
		VirtualAccount: order.VirtualAccount,
	}
}

func startSpan(ctx context.Context, operation, description string) *sentry.Span {
	return sentry.StartSpan(
		ctx,
		"service.reconciliation."+operation,
		sentry.WithOpName("service.reconciliation"),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
}

func finishSpan(span *sentry.Span, err error) {
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()
}

func (s *ReconciliationService) CreateOrder(ctx context.Context, input CreateOrderInput) (_ *models.Order, _ PaymentPresentation, err error) {
	span := startSpan(ctx, "create_order", "CreateOrder")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.ComponentMeter(ctx, componentReconciliation, attribute.String("payment_method", string(input.PaymentMethod)))
	recordFailure := func(reason string) {
		meter.Count("order.create.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	if err := s.validate.Struct(input); err != nil {
		recordFailure("invalid_input")
		return nil, PaymentPresentation{}, UserError{Message: fmt.Sprintf("Invalid order: %s", err.Error())}
	}
	switch input.PaymentMethod {
	case models.MethodCOD, models.MethodCard, models.MethodInstapay, models.MethodFawry:
	case models.MethodMobileWallet, models.MethodWallet:
		recordFailure("unsupported_method")
		return nil, PaymentPresentation{}, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, input.PaymentMethod)
	default:
		recordFailure("unknown_method")
		return nil, PaymentPresentation{}, UserError{Message: "Unsupported payment method"}
	}
	if input.PaymentMethod == models.MethodCard {
		if input.Card == nil {
			recordFailure("card_missing")
			return nil, PaymentPresentation{}, UserError{Message: "Card details are required for card payment"}
		}
		if err := s.validate.Struct(input.Card); err != nil {
			recordFailure("card_invalid")
			return nil, PaymentPresentation{}, UserError{Message: "Card details are required for card payment"}
		}
	}

	totals, err := s.pricer.ComputeTotals(s.profile, input.Items, input.PromoCode, input.WalletCents)
	if err != nil {
		recordFailure("pricing_failed")
		return nil, PaymentPresentation{}, UserError{Message: err.Error()}
	}

	now := s.now()
	order := models.NewOrder(input.PaymentMethod, s.newReference(), now)
	order.UserID = input.Customer.ID
	order.UserEmail = input.Customer.Email
	order.Currency = s.profile.Pricing.Currency
	order.SubtotalCents = totals.SubtotalCents
	order.DeliveryFeeCents = totals.DeliveryFeeCents
	order.DiscountCents = totals.DiscountCents
	order.WalletUsedCents = totals.WalletUsedCents
	order.TotalCents = totals.TotalCents
	order.AmountDueCents = totals.AmountDueCents
	order.PromoCode = totals.PromoCode
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			FoodID:              item.FoodID,
			Name:                item.Name,
			PortionName:         item.PortionName,
			Quantity:            item.Quantity,
			UnitPriceCents:      item.UnitPriceCents,
			CustomizationsCents: item.CustomizationsCents,
			TotalPriceCents:     s.pricer.LineTotal(item),
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		recordFailure("persist_failed")
		return nil, PaymentPresentation{}, fmt.Errorf("failed to create order: %w", err)
	}

	outcome := s.attemptPayment(ctx, order, input.Card)
	order, err = s.settleCreatedOrder(ctx, order, outcome)
	if err != nil {
		recordFailure("persist_failed")
		return nil, PaymentPresentation{}, err
	}

	logger.Info("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"payment_method", order.PaymentMethod,
		"payment_status", order.PaymentStatus,
		"status", order.Status,
	)
	meter.Count("order.created", 1, sentry.WithAttributes(
		attribute.String("payment_status", string(order.PaymentStatus)),
	))

	s.publish(ctx, EventOrderCreated, order)
	s.notifySync(ctx, order)
	order = s.sendConfirmation(ctx, order, "")

	return order, presentPayment(order), nil
}

// attemptPayment never fails. An unreachable gateway leaves the payment
// pending so a later provider confirmation can still settle it.
func (s *ReconciliationService) attemptPayment(ctx context.Context, order *models.Order, card *payments.CardDetails) models.PaymentOutcome {
	outcome, err := s.gateway.AttemptInitialPayment(ctx, payments.PaymentRequest{
		Method:      order.PaymentMethod,
		Reference:   order.PaymentReference,
		Attempt:     order.PaymentAttempts + 1,
		AmountCents: order.AmountDueCents,
		Currency:    order.Currency,
		Card:        card,
	})
	if err != nil {
		s.loggerFromContext(ctx).Warn("payment gateway unavailable, leaving payment pending",
			"error", err,
			"order_id", order.ID,
			"payment_method", order.PaymentMethod,
		)
		s.meter(ctx).Count("payment.gateway.unavailable", 1)
		return payments.UnavailableOutcome()
	}
	return outcome
}

// settleCreatedOrder records the first gateway outcome on a stored order. Once
// the gateway has been called the order is never removed: a concurrent writer
// (usually the provider webhook) keeps its state and the outcome is reapplied
// only while the payment is still untouched.
func (s *ReconciliationService) settleCreatedOrder(ctx context.Context, order *models.Order, outcome models.PaymentOutcome) (*models.Order, error) {
	logger := s.loggerFromContext(ctx).With("order_id", order.ID)

	if err := order.Clone().ApplyPaymentOutcome(outcome, "", s.now()); err != nil {
		s.meter(ctx).Count("payment.outcome.rejected", 1)
		logger.Error("gateway outcome rejected, leaving payment pending", "error", err)
		outcome = payments.UnavailableOutcome()
	}

	for attempt := 1; ; attempt++ {
		if err := order.ApplyPaymentOutcome(outcome, "", s.now()); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				logger.Info("payment settled by a concurrent writer", "payment_status", order.PaymentStatus, "status", order.Status)
				return order, nil
			}
			return nil, fmt.Errorf("failed to apply payment outcome: %w", err)
		}

		err := s.orders.Save(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, db.ErrConcurrencyConflict) || attempt >= orderSaveAttempts {
			return nil, fmt.Errorf("failed to save order: %w", err)
		}

		logger.Info("order changed while charging, reloading", "attempt", attempt)
		order, err = s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload order: %w", err)
		}
		if order.PaymentStatus != models.PaymentPending || order.WebhookApplied() {
			logger.Info("payment settled by a concurrent writer", "payment_status", order.PaymentStatus, "status", order.Status)
			return order, nil
		}
	}
}

// GetOrder returns the order when actor owns it or is an admin. Orders owned
// by someone else are reported as not found.
func (s *ReconciliationService) GetOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !canAccessOrder(actor, order) {
		return nil, fmt.Errorf("failed to load order: %w", db.ErrNotFound)
	}
	return order, nil
}

func (s *ReconciliationService) RetryCardPayment(ctx context.Context, orderID uuid.UUID, card payments.CardDetails, actor models.Actor) (_ *models.Order, _ PaymentPresentation, err error) {
	span := startSpan(ctx, "retry_card_payment", "RetryCardPayment")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	if err := s.validate.Struct(card); err != nil {
		return nil, PaymentPresentation{}, UserError{Message: "Card details are required"}
	}

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, PaymentPresentation{}, err
	}
	if order.PaymentMethod != models.MethodCard {
		return nil, PaymentPresentation{}, fmt.Errorf("%w: order %s is paid by %s", ErrPaymentNotRetryable, order.ID, order.PaymentMethod)
	}
	if order.PaymentStatus != models.PaymentFailed || order.Status != models.StatusPending {
		return nil, PaymentPresentation{}, fmt.Errorf("%w: order %s is %s/%s", ErrPaymentNotRetryable, order.ID, order.Status, order.PaymentStatus)
	}

	if err := order.RetryPayment(actor, s.now()); err != nil {
		return nil, PaymentPresentation{}, err
	}
	outcome := s.attemptPayment(ctx, order, &card)
	if err := order.ApplyPaymentOutcome(outcome, "Card retry", s.now()); err != nil {
		return nil, PaymentPresentation{}, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, PaymentPresentation{}, fmt.Errorf("failed to save order: %w", err)
	}

	s.meter(ctx).Count("payment.card.retried", 1, sentry.WithAttributes(
		attribute.String("payment_status", string(order.PaymentStatus)),
	))
	s.afterPaymentChange(ctx, order)
	return order, presentPayment(order), nil
}

func (s *ReconciliationService) VerifyTransferPayment(ctx context.Context, orderID uuid.UUID, actor models.Actor) (_ *models.Order, _ PaymentPresentation, err error) {
	span := startSpan(ctx, "verify_transfer_payment", "VerifyTransferPayment")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, PaymentPresentation{}, err
	}
	if !order.PaymentMethod.IsTransfer() {
		return nil, PaymentPresentation{}, fmt.Errorf("%w: order %s is paid by %s", ErrPaymentNotVerifiable, order.ID, order.PaymentMethod)
	}
	if order.PaymentStatus != models.PaymentAwaitingTransfer {
		return nil, PaymentPresentation{}, fmt.Errorf("%w: payment is %s", ErrPaymentNotVerifiable, order.PaymentStatus)
	}

	outcome, gatewayErr := s.gateway.VerifyPendingTransfer(ctx, order)
	if gatewayErr != nil {
		s.loggerFromContext(ctx).Warn("transfer verification unavailable", "error", gatewayErr, "order_id", order.ID)
		outcome = payments.StillAwaitingOutcome(order)
	}
	if err := order.ApplyPaymentOutcome(outcome, "", s.now()); err != nil {
		return nil, PaymentPresentation{}, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, PaymentPresentation{}, fmt.Errorf("failed to save order: %w", err)
	}

	s.meter(ctx).Count("payment.transfer.verified", 1, sentry.WithAttributes(
		attribute.String("payment_status", string(order.PaymentStatus)),
	))
	s.afterPaymentChange(ctx, order)
	return order, presentPayment(order), nil
}

func (s *ReconciliationService) AdminOverridePaymentStatus(ctx context.Context, orderID uuid.UUID, next models.PaymentStatus, actor models.Actor) (_ *models.Order, err error) {
	span := startSpan(ctx, "override_payment_status", "AdminOverridePaymentStatus")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	if !next.Valid() {
		return nil, UserError{Message: "Invalid payment status value"}
	}

	order, err := s.mutate(ctx, orderID, func(order *models.Order) error {
		return order.OverridePaymentStatus(next, actor, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.loggerFromContext(ctx).Info("payment status overridden",
		"order_id", order.ID,
		"payment_status", order.PaymentStatus,
		"actor_id", actor.ID,
		"actor_role", actor.Role,
	)
	s.afterPaymentChange(ctx, order)
	return order, nil
}

func (s *ReconciliationService) AdvanceOrderStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus, actor models.Actor) (_ *models.Order, err error) {
	span := startSpan(ctx, "advance_order_status", "AdvanceOrderStatus")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	if !next.Valid() {
		return nil, UserError{Message: "Invalid order status value"}
	}

	order, err := s.mutate(ctx, orderID, func(order *models.Order) error {
		return order.AdvanceOrderStatus(next, actor, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.meter(ctx).Count("order.status.changed", 1, sentry.WithAttributes(
		attribute.String("status", string(order.Status)),
	))
	s.publish(ctx, EventOrderStatusChanged, order)
	s.notifySync(ctx, order)
	return order, nil
}

// RefundOrder moves the payment to refunded. Kitchen and delivery state are
// independent of money state and are left alone.
func (s *ReconciliationService) RefundOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (_ *models.Order, err error) {
	span := startSpan(ctx, "refund_order", "RefundOrder")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	order, err := s.mutate(ctx, orderID, func(order *models.Order) error {
		return order.Refund(actor, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.meter(ctx).Count("payment.refunded", 1)
	s.afterPaymentChange(ctx, order)
	return order, nil
}

// CancelOrder cancels on behalf of the owner or an admin. Customers can only
// cancel before the kitchen starts.
func (s *ReconciliationService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (_ *models.Order, err error) {
	span := startSpan(ctx, "cancel_order", "CancelOrder")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !IsAdmin(actor) && order.Status != models.StatusPending && order.Status != models.StatusConfirmed {
		return nil, UserError{Message: "Order cannot be cancelled at this stage"}
	}
	if err := order.Cancel(actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.meter(ctx).Count("order.cancelled", 1)
	s.publish(ctx, EventOrderStatusChanged, order)
	s.notifySync(ctx, order)
	return order, nil
}

// ResendConfirmationEmail sends the confirmation again and records the result.
// Order and payment status are never touched.
func (s *ReconciliationService) ResendConfirmationEmail(ctx context.Context, orderID uuid.UUID, actor models.Actor) (_ *models.Order, _ models.EmailResult, err error) {
	span := startSpan(ctx, "resend_confirmation_email", "ResendConfirmationEmail")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, models.EmailResult{}, fmt.Errorf("failed to load order: %w", err)
	}

	result := s.emailer.SendConfirmation(ctx, order)
	note := fmt.Sprintf("Order confirmation email resent by %s", actor.Label())
	if !result.Success {
		note = fmt.Sprintf("Email resend failed: %s", result.Error)
	}

	saved, err := s.recordEmailResult(ctx, order, result, note)
	if err != nil {
		return nil, result, err
	}
	s.notifySync(ctx, saved)
	return saved, result, nil
}

func (s *ReconciliationService) DeleteOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (err error) {
	span := startSpan(ctx, "delete_order", "DeleteOrder")
	defer func() { finishSpan(span, err) }()
	ctx = span.Context()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	s.loggerFromContext(ctx).Warn("order deleted",
		"order_id", orderID,
		"order_number", order.OrderNumber,
		"actor_id", actor.ID,
		"actor_role", actor.Role,
	)
	s.publish(ctx, EventOrderDeleted, order)
	return nil
}

// mutate loads the order, applies fn and saves it with a version check. A
// rejected transition leaves the stored order untouched.
func (s *ReconciliationService) mutate(ctx context.Context, orderID uuid.UUID, fn func(order *models.Order) error) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if err := fn(order); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			s.meter(ctx).Count("order.transition.rejected", 1)
		}
		return nil, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}
	return order, nil
}

func (s *ReconciliationService) afterPaymentChange(ctx context.Context, order *models.Order) {
	s.publish(ctx, EventOrderPaymentUpdated, order)
	s.notifySync(ctx, order)
}

func (s *ReconciliationService) sendConfirmation(ctx context.Context, order *models.Order, note string) *models.Order {
	result := s.emailer.SendConfirmation(ctx, order)
	if !result.Success {
		s.loggerFromContext(ctx).Warn("order confirmation email failed", "order_id", order.ID, "error", result.Error)
	}
	saved, err := s.recordEmailResult(ctx, order, result, note)
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to persist email status", "error", err, "order_id", order.ID)
		return order
	}
	s.notifySync(ctx, saved)
	return saved
}

// recordEmailResult stores the email outcome. Email fields do not take part in
// the state machines, so a lost race is resolved by reloading and writing again.
func (s *ReconciliationService) recordEmailResult(ctx context.Context, order *models.Order, result models.EmailResult, note string) (*models.Order, error) {
	current := order
	for attempt := 1; ; attempt++ {
		current.RecordEmailResult(result, s.now())
		if note != "" {
			current.AddNote(note, s.now())
		}
		err := s.orders.Save(ctx, current)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, db.ErrConcurrencyConflict) || attempt >= emailSaveAttempts {
			return nil, fmt.Errorf("failed to save email status: %w", err)
		}
		current, err = s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload order: %w", err)
		}
	}
}

func (s *ReconciliationService) notifySync(ctx context.Context, order *models.Order) {
	if err := s.sync.NotifyOrder(ctx, order); err != nil {
		s.meter(ctx).Count("order.sync.failed", 1)
		s.loggerFromContext(ctx).Error("external sync failed", "error", err, "order_id", order.ID)
	}
}

func (s *ReconciliationService) publish(ctx context.Context, eventType string, order *models.Order) {
	if err := s.publisher.PublishOrderEvent(ctx, eventType, order); err != nil {
		s.loggerFromContext(ctx).Warn("failed to publish order event", "error", err, "event", eventType, "order_id", order.ID)
	}
}
