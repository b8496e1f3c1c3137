// Package mirror keeps a read-optimized copy of every order in the analytics
// database.
package mirror

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/smartapp/orderpay/internal/logging"
	"github.com/smartapp/orderpay/internal/models"
)

//go:embed schema.sql
var schemaSQL string

var paymentMethodNames = map[models.PaymentMethod]string{
	models.MethodCOD:      "cash_on_delivery",
	models.MethodCard:     "card",
	models.MethodInstapay: "instapay",
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Row is the analytics view of an order.
type Row struct {
	OrderID             string
	OrderNumber         string
	UserID              string
	UserEmail           *string
	Items               []byte
	TotalAmount         string
	PaymentMethod       string
	PaymentStatus       string
	TransactionID       *string
	PaymentTimestamp    pgtype.Timestamptz
	OrderStatus         string
	EmailSent           bool
	EmailSentAt         pgtype.Timestamptz
	EmailDeliveryStatus string
	Version             int
	CreatedAt           time.Time
}

// BuildRow flattens the full order snapshot. Money is rendered in major units
// with two decimals.
func BuildRow(order *models.Order) (Row, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return Row{}, fmt.Errorf("failed to marshal items: %w", err)
	}
	if order.Items == nil {
		items = []byte("[]")
	}

	method, ok := paymentMethodNames[order.PaymentMethod]
	if !ok {
		method = string(order.PaymentMethod)
	}
	deliveryStatus := order.EmailDeliveryStatus
	if deliveryStatus == "" {
		deliveryStatus = models.EmailPending
	}

	return Row{
		OrderID:             order.ID.String(),
		OrderNumber:         order.OrderNumber,
		UserID:              order.UserID,
		UserEmail:           optional(order.UserEmail),
		Items:               items,
		TotalAmount:         fmt.Sprintf("%d.%02d", order.TotalCents/100, order.TotalCents%100),
		PaymentMethod:       method,
		PaymentStatus:       string(order.PaymentStatus),
		TransactionID:       optional(order.TransactionID),
		PaymentTimestamp:    timestamptz(order.PaymentTimestamp),
		OrderStatus:         string(order.Status),
		EmailSent:           order.EmailDeliveryStatus == models.EmailSent,
		EmailSentAt:         timestamptz(order.EmailSentAt),
		EmailDeliveryStatus: string(deliveryStatus),
		Version:             order.Version,
		CreatedAt:           order.CreatedAt,
	}, nil
}

// PostgresMirror upserts order snapshots. A snapshot older than the stored one
// is ignored so out-of-order calls cannot roll the mirror back.
type PostgresMirror struct {
	db     execer
	logger *slog.Logger
}

func NewPostgresMirror(db execer, logger *slog.Logger) *PostgresMirror {
	return &PostgresMirror{db: db, logger: logger}
}

// Migrate creates the mirror table.
func (m *PostgresMirror) Migrate(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply mirror schema: %w", err)
	}
	return nil
}

const upsertQuery = `
	INSERT INTO orders_mirror (
		order_id, order_number, user_id, user_email, order_items, total_amount,
		payment_method, payment_status, transaction_id, payment_timestamp,
		order_status, email_sent, email_sent_at, email_delivery_status,
		version, created_at, synced_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
	ON CONFLICT (order_id) DO UPDATE SET
		order_number = EXCLUDED.order_number,
		user_email = EXCLUDED.user_email,
		order_items = EXCLUDED.order_items,
		total_amount = EXCLUDED.total_amount,
		payment_method = EXCLUDED.payment_method,
		payment_status = EXCLUDED.payment_status,
		transaction_id = EXCLUDED.transaction_id,
		payment_timestamp = EXCLUDED.payment_timestamp,
		order_status = EXCLUDED.order_status,
		email_sent = EXCLUDED.email_sent,
		email_sent_at = EXCLUDED.email_sent_at,
		email_delivery_status = EXCLUDED.email_delivery_status,
		version = EXCLUDED.version,
		synced_at = NOW()
	WHERE orders_mirror.version <= EXCLUDED.version
`

func (m *PostgresMirror) NotifyOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	row, err := BuildRow(order)
	if err != nil {
		return err
	}

	cmdTag, err := m.db.Exec(ctx, upsertQuery,
		row.OrderID, row.OrderNumber, row.UserID, row.UserEmail, row.Items, row.TotalAmount,
		row.PaymentMethod, row.PaymentStatus, row.TransactionID, row.PaymentTimestamp,
		row.OrderStatus, row.EmailSent, row.EmailSentAt, row.EmailDeliveryStatus,
		row.Version, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("analytics sync failed: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		logging.FromContext(ctx, m.logger).Debug("skipped stale mirror snapshot", "order_id", row.OrderID, "version", row.Version)
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
