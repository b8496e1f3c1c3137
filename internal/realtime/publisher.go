// Package realtime broadcasts order changes to kitchen and admin dashboards.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartapp/orderpay/internal/models"
)

const DefaultChannel = "orders:events"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Event is the message body published for every order change.
type Event struct {
	Type          string               `json:"type"`
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	UserID        string               `json:"user_id"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	TotalCents    int64                `json:"total_cents"`
	Version       int                  `json:"version"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

type RedisPublisher struct {
	client  redisPublisher
	channel string
	now     func() time.Time
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return newRedisPublisher(client, channel)
}

func newRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *RedisPublisher) PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}

	payload, err := json.Marshal(Event{
		Type:          eventType,
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		Version:       order.Version,
		OccurredAt:    p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}
