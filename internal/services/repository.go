package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/smartapp/orderpay/internal/models"
)

// OrderRepository is the persistence surface the services need. Save must
// compare the stored version and fail with db.ErrConcurrencyConflict when the
// order changed since it was loaded.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByReference(ctx context.Context, reference string) (*models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}
