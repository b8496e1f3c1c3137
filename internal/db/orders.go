package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartapp/orderpay/internal/models"
)

type Order = models.Order

var (
	ErrNotFound            = errors.New("order not found")
	ErrConcurrencyConflict = errors.New("order was modified concurrently")
	ErrDuplicateReference  = errors.New("payment reference already in use")
)

const uniqueViolation = "23505"

// FormatOrderNumber renders the human readable order number for a sequence value.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("SF-%d-%06d", year, seq)
}

type OrderStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{
		pool: pool,
		now:  time.Now,
	}
}

const orderColumns = `
	id, order_number, user_id, user_email, items, status, payment_status, payment_method,
	payment_reference, transaction_id, payment_timestamp, payment_message, reference_code,
	virtual_account, payment_attempts, webhook_processed_at, timeline, email_delivery_status,
	email_sent_at, email_error, email_provider_message_id, currency, subtotal_cents,
	delivery_fee_cents, discount_cents, wallet_used_cents, total_cents, amount_due_cents,
	promo_code, version, created_at, updated_at`

// Create inserts a new order, assigning its id, order number and initial version.
func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	itemsJSON, timelineJSON, err := marshalCollections(order)
	if err != nil {
		return err
	}

	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('`+orderNumberSequence+`')`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate order number: %w", err)
	}
	orderNumber := FormatOrderNumber(order.CreatedAt.Year(), seq)

	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, 1, $30, $31)`
	_, err = s.pool.Exec(ctx, query,
		order.ID, orderNumber, order.UserID, order.UserEmail, itemsJSON,
		string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod),
		order.PaymentReference, order.TransactionID, timestamptz(order.PaymentTimestamp),
		order.PaymentMessage, order.ReferenceCode, order.VirtualAccount, order.PaymentAttempts,
		timestamptz(order.WebhookProcessedAt), timelineJSON, string(order.EmailDeliveryStatus),
		timestamptz(order.EmailSentAt), order.EmailError, order.EmailProviderMessageID,
		order.Currency, order.SubtotalCents, order.DeliveryFeeCents, order.DiscountCents,
		order.WalletUsedCents, order.TotalCents, order.AmountDueCents, order.PromoCode,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "orders_payment_reference_key" {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, order.PaymentReference)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	order.OrderNumber = orderNumber
	order.Version = 1
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderStore) GetByReference(ctx context.Context, reference string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference)
	return scanOrder(row)
}

// Save writes the order only if the stored version still matches the one it
// was loaded at. On success the version is bumped in place.
func (s *OrderStore) Save(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	itemsJSON, timelineJSON, err := marshalCollections(order)
	if err != nil {
		return err
	}

	query := `
		UPDATE orders
		SET items = $3, status = $4, payment_status = $5, transaction_id = $6,
		    payment_timestamp = $7, payment_message = $8, reference_code = $9,
		    virtual_account = $10, payment_attempts = $11, webhook_processed_at = $12,
		    timeline = $13, email_delivery_status = $14, email_sent_at = $15,
		    email_error = $16, email_provider_message_id = $17, updated_at = $18,
		    version = version + 1
		WHERE id = $1 AND version = $2
	`
	cmdTag, err := s.pool.Exec(ctx, query,
		order.ID, order.Version, itemsJSON, string(order.Status), string(order.PaymentStatus),
		order.TransactionID, timestamptz(order.PaymentTimestamp), order.PaymentMessage,
		order.ReferenceCode, order.VirtualAccount, order.PaymentAttempts,
		timestamptz(order.WebhookProcessedAt), timelineJSON, string(order.EmailDeliveryStatus),
		timestamptz(order.EmailSentAt), order.EmailError, order.EmailProviderMessageID,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check order: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("%w: order %s at version %d", ErrConcurrencyConflict, order.ID, order.Version)
	}

	order.Version++
	return nil
}

func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order                                         Order
		itemsJSON, timelineJSON                       []byte
		status, paymentStatus, method, emailStatus    string
		paymentTimestamp, webhookProcessed, emailSent pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.UserEmail, &itemsJSON,
		&status, &paymentStatus, &method, &order.PaymentReference, &order.TransactionID,
		&paymentTimestamp, &order.PaymentMessage, &order.ReferenceCode, &order.VirtualAccount,
		&order.PaymentAttempts, &webhookProcessed, &timelineJSON, &emailStatus, &emailSent,
		&order.EmailError, &order.EmailProviderMessageID, &order.Currency, &order.SubtotalCents,
		&order.DeliveryFeeCents, &order.DiscountCents, &order.WalletUsedCents, &order.TotalCents,
		&order.AmountDueCents, &order.PromoCode, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	order.Status = models.OrderStatus(status)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.PaymentMethod = models.PaymentMethod(method)
	order.EmailDeliveryStatus = models.EmailDeliveryStatus(emailStatus)
	if paymentTimestamp.Valid {
		order.PaymentTimestamp = paymentTimestamp.Time
	}
	if webhookProcessed.Valid {
		order.WebhookProcessedAt = webhookProcessed.Time
	}
	if emailSent.Valid {
		order.EmailSentAt = emailSent.Time
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
	}
	if len(timelineJSON) > 0 {
		if err := json.Unmarshal(timelineJSON, &order.Timeline); err != nil {
			return nil, fmt.Errorf("failed to decode order timeline: %w", err)
		}
	}
	return &order, nil
}

func marshalCollections(order *Order) ([]byte, []byte, error) {
	items := order.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode order items: %w", err)
	}
	timeline := order.Timeline
	if timeline == nil {
		timeline = []models.TimelineEntry{}
	}
	timelineJSON, err := json.Marshal(timeline)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode order timeline: %w", err)
	}
	return itemsJSON, timelineJSON, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
