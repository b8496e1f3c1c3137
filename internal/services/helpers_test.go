package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartapp/orderpay/internal/catalog"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/payments"
)

var (
	customer     = models.Actor{ID: "user-1", Role: models.RoleCustomer}
	otherUser    = models.Actor{ID: "user-2", Role: models.RoleCustomer}
	superAdmin   = models.Actor{ID: "admin-1", Role: models.RoleSuperAdmin}
	supportAdmin = models.Actor{ID: "admin-2", Role: models.RoleSupportAdmin}
	kitchenAdmin = models.Actor{ID: "admin-3", Role: models.RoleKitchenAdmin}
)

type gatewayReply struct {
	outcome models.PaymentOutcome
	err     error
}

// scriptedGateway replays queued replies in order.
type scriptedGateway struct {
	mu       sync.Mutex
	attempts []gatewayReply
	verifies []gatewayReply
	requests []payments.PaymentRequest
	// onAttempt runs while the charge is in flight.
	onAttempt func(req payments.PaymentRequest)
}

func (g *scriptedGateway) AttemptInitialPayment(_ context.Context, req payments.PaymentRequest) (models.PaymentOutcome, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	onAttempt := g.onAttempt
	if len(g.attempts) == 0 {
		g.mu.Unlock()
		return models.PaymentOutcome{}, errors.New("no scripted attempt")
	}
	reply := g.attempts[0]
	g.attempts = g.attempts[1:]
	g.mu.Unlock()

	if onAttempt != nil {
		onAttempt(req)
	}
	return reply.outcome, reply.err
}

func (g *scriptedGateway) VerifyPendingTransfer(context.Context, *models.Order) (models.PaymentOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.verifies) == 0 {
		return models.PaymentOutcome{}, errors.New("no scripted verification")
	}
	reply := g.verifies[0]
	g.verifies = g.verifies[1:]
	return reply.outcome, reply.err
}

type recordingSync struct {
	mu        sync.Mutex
	snapshots []*models.Order
	err       error
}

func (r *recordingSync) NotifyOrder(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, order.Clone())
	return r.err
}

func (r *recordingSync) last() *models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, eventType string, _ *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

type stubEmailer struct {
	result models.EmailResult
	calls  int
}

func (e *stubEmailer) SendConfirmation(context.Context, *models.Order) models.EmailResult {
	e.calls++
	return e.result
}

// conflictOnce fails the first Save with a concurrency conflict.
type conflictOnce struct {
	*db.MemoryOrderStore
	mu      sync.Mutex
	tripped bool
}

func (c *conflictOnce) Save(ctx context.Context, order *models.Order) error {
	c.mu.Lock()
	trip := !c.tripped
	c.tripped = true
	c.mu.Unlock()
	if trip {
		return db.ErrConcurrencyConflict
	}
	return c.MemoryOrderStore.Save(ctx, order)
}

type fixture struct {
	store     *db.MemoryOrderStore
	gateway   *scriptedGateway
	sync      *recordingSync
	publisher *recordingPublisher
	emailer   *stubEmailer
	service   *ReconciliationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     db.NewMemoryOrderStore(),
		gateway:   &scriptedGateway{},
		sync:      &recordingSync{},
		publisher: &recordingPublisher{},
		emailer: &stubEmailer{result: models.EmailResult{
			Success:           true,
			Status:            models.EmailSent,
			ProviderMessageID: "re_123",
		}},
	}
	f.service = NewReconciliationService(ReconciliationDeps{
		Orders:    f.store,
		Gateway:   f.gateway,
		Sync:      f.sync,
		Emailer:   f.emailer,
		Publisher: f.publisher,
	})
	f.service.now = steppingClock()
	return f
}

// steppingClock advances one second per call so timeline entries are ordered.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	clock := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
}

func orderInput(method models.PaymentMethod) CreateOrderInput {
	input := CreateOrderInput{
		Customer: Customer{ID: customer.ID, Email: "customer@example.com", Name: "Mona"},
		Items: []catalog.CartItem{{
			FoodID:         "food-1",
			Name:           "Koshari",
			Quantity:       2,
			UnitPriceCents: 5000,
		}},
		PaymentMethod: method,
	}
	if method == models.MethodCard {
		input.Card = &payments.CardDetails{Token: "pm_card_visa"}
	}
	return input
}

func outcome(payment models.PaymentStatus, status models.OrderStatus) gatewayReply {
	return gatewayReply{outcome: models.PaymentOutcome{
		PaymentStatus: payment,
		OrderStatus:   status,
		TransactionID: "TX-1",
		Message:       "scripted " + string(payment),
	}}
}

func countTimeline(order *models.Order, message string) int {
	n := 0
	for _, entry := range order.Timeline {
		if entry.Message == message {
			n++
		}
	}
	return n
}
