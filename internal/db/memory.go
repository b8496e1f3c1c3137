package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOrderStore keeps orders in process. It enforces the same version
// compare-and-swap and reference uniqueness as OrderStore.
type MemoryOrderStore struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*Order
	references map[string]uuid.UUID
	seq        int64
	now        func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:     make(map[uuid.UUID]*Order),
		references: make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

func (s *MemoryOrderStore) Create(_ context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.references[order.PaymentReference]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, order.PaymentReference)
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	s.seq++
	order.OrderNumber = FormatOrderNumber(order.CreatedAt.Year(), s.seq)
	order.Version = 1

	s.orders[order.ID] = order.Clone()
	s.references[order.PaymentReference] = order.ID
	return nil
}

func (s *MemoryOrderStore) GetByID(_ context.Context, orderID uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryOrderStore) GetByReference(_ context.Context, reference string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.references[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return s.orders[id].Clone(), nil
}

func (s *MemoryOrderStore) Save(_ context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != order.Version {
		return fmt.Errorf("%w: order %s at version %d", ErrConcurrencyConflict, order.ID, order.Version)
	}

	order.Version++
	next := order.Clone()
	// creation-time fields never change after insert
	next.OrderNumber = stored.OrderNumber
	next.PaymentReference = stored.PaymentReference
	next.PaymentMethod = stored.PaymentMethod
	next.CreatedAt = stored.CreatedAt
	s.orders[order.ID] = next
	return nil
}

func (s *MemoryOrderStore) Delete(_ context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	delete(s.references, order.PaymentReference)
	delete(s.orders, orderID)
	return nil
}
