package payments

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/smartapp/orderpay/internal/models"
)

const (
	DefaultVirtualAccount    = "EG00MOCK0000001234567890123456"
	DefaultVerifySuccessRate = 0.8

	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type CardWeights struct {
	Paid    float64 `yaml:"paid"`
	Failed  float64 `yaml:"failed"`
	Pending float64 `yaml:"pending"`
}

func DefaultCardWeights() CardWeights {
	return CardWeights{Paid: 0.7, Failed: 0.2, Pending: 0.1}
}

func (w CardWeights) total() float64 {
	return w.Paid + w.Failed + w.Pending
}

// SimulatedGateway stands in for the real provider. Card charges resolve by
// weighted draw and transfers by a fixed verification rate.
type SimulatedGateway struct {
	mu                sync.Mutex
	rng               *rand.Rand
	weights           CardWeights
	verifySuccessRate float64
	virtualAccount    string
	newID             func() string
}

type SimulatedOption func(*SimulatedGateway)

func WithRand(rng *rand.Rand) SimulatedOption {
	return func(g *SimulatedGateway) {
		if rng != nil {
			g.rng = rng
		}
	}
}

func WithCardWeights(weights CardWeights) SimulatedOption {
	return func(g *SimulatedGateway) {
		if weights.total() > 0 {
			g.weights = weights
		}
	}
}

func WithVerifySuccessRate(rate float64) SimulatedOption {
	return func(g *SimulatedGateway) {
		if rate >= 0 && rate <= 1 {
			g.verifySuccessRate = rate
		}
	}
}

func WithVirtualAccount(account string) SimulatedOption {
	return func(g *SimulatedGateway) {
		if account != "" {
			g.virtualAccount = account
		}
	}
}

func WithIDGenerator(newID func() string) SimulatedOption {
	return func(g *SimulatedGateway) {
		if newID != nil {
			g.newID = newID
		}
	}
}

func NewSimulatedGateway(opts ...SimulatedOption) *SimulatedGateway {
	g := &SimulatedGateway{
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		weights:           DefaultCardWeights(),
		verifySuccessRate: DefaultVerifySuccessRate,
		virtualAccount:    DefaultVirtualAccount,
		newID:             func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SimulatedGateway) AttemptInitialPayment(ctx context.Context, req PaymentRequest) (models.PaymentOutcome, error) {
	if err := ctx.Err(); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	switch {
	case req.Method == models.MethodCOD:
		return models.PaymentOutcome{
			PaymentStatus: models.PaymentPending,
			OrderStatus:   models.StatusConfirmed,
			TransactionID: "COD-" + g.newID(),
			Message:       MessageCOD,
		}, nil
	case req.Method == models.MethodCard:
		return g.chargeCard(), nil
	case req.Method.IsTransfer():
		return models.PaymentOutcome{
			PaymentStatus:  models.PaymentAwaitingTransfer,
			OrderStatus:    models.StatusPending,
			TransactionID:  transferPrefix(req.Method) + g.newID(),
			Message:        MessageTransferPending,
			ReferenceCode:  g.referenceCode(),
			VirtualAccount: g.virtualAccount,
		}, nil
	default:
		return models.PaymentOutcome{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}
}

func (g *SimulatedGateway) VerifyPendingTransfer(ctx context.Context, order *models.Order) (models.PaymentOutcome, error) {
	if err := ctx.Err(); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	if order == nil || !order.PaymentMethod.IsTransfer() {
		return models.PaymentOutcome{}, fmt.Errorf("%w: transfer verification", ErrUnsupportedMethod)
	}

	if g.draw() < g.verifySuccessRate {
		return models.PaymentOutcome{
			PaymentStatus: models.PaymentPaid,
			OrderStatus:   models.StatusConfirmed,
			TransactionID: order.TransactionID,
			Message:       MessageTransferVerified,
		}, nil
	}
	return models.PaymentOutcome{
		PaymentStatus: models.PaymentAwaitingTransfer,
		OrderStatus:   order.Status,
		TransactionID: order.TransactionID,
		Message:       MessageTransferWaiting,
	}, nil
}

func (g *SimulatedGateway) chargeCard() models.PaymentOutcome {
	txID := "CARD-" + g.newID()
	roll := g.draw() * g.weights.total()

	switch {
	case roll < g.weights.Paid:
		return models.PaymentOutcome{
			PaymentStatus: models.PaymentPaid,
			OrderStatus:   models.StatusConfirmed,
			TransactionID: txID,
			Message:       MessageCardApproved,
		}
	case roll < g.weights.Paid+g.weights.Failed:
		return models.PaymentOutcome{
			PaymentStatus: models.PaymentFailed,
			OrderStatus:   models.StatusPending,
			TransactionID: txID,
			Message:       MessageCardFailed,
		}
	default:
		return models.PaymentOutcome{
			PaymentStatus: models.PaymentPending,
			OrderStatus:   models.StatusPending,
			TransactionID: txID,
			Message:       MessageCardProcessing,
		}
	}
}

func (g *SimulatedGateway) draw() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func (g *SimulatedGateway) referenceCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := make([]byte, 6)
	for i := range code {
		code[i] = referenceAlphabet[g.rng.Intn(len(referenceAlphabet))]
	}
	return "INST-" + string(code)
}

func transferPrefix(method models.PaymentMethod) string {
	if method == models.MethodFawry {
		return "FAWRY-"
	}
	return "INST-"
}
