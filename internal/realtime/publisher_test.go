package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smartapp/orderpay/internal/models"
)

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestPublishOrderEvent(t *testing.T) {
	t.Parallel()

	client := &fakeRedis{}
	publisher := newRedisPublisher(client, "")
	publisher.now = func() time.Time { return time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC) }

	order := &models.Order{
		ID:            uuid.MustParse("7d7c1a64-7c1b-4ac8-8f3f-0c5d4b7e2a10"),
		OrderNumber:   "SF-2026-000011",
		Status:        models.StatusPreparing,
		PaymentStatus: models.PaymentPaid,
		Version:       5,
	}
	if err := publisher.PublishOrderEvent(context.Background(), "order.status_changed", order); err != nil {
		t.Fatalf("PublishOrderEvent() error = %v", err)
	}
	if client.channel != DefaultChannel {
		t.Fatalf("channel = %q", client.channel)
	}

	var event Event
	if err := json.Unmarshal(client.message, &event); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if event.Type != "order.status_changed" || event.Status != models.StatusPreparing || event.Version != 5 {
		t.Fatalf("event = %+v", event)
	}
	if event.OrderID != order.ID.String() || event.OccurredAt.IsZero() {
		t.Fatalf("event = %+v", event)
	}
}

func TestPublishOrderEventError(t *testing.T) {
	t.Parallel()

	publisher := newRedisPublisher(&fakeRedis{err: errors.New("READONLY")}, "custom")
	if err := publisher.PublishOrderEvent(context.Background(), "order.created", &models.Order{}); err == nil {
		t.Fatal("expected publish error")
	}
	if err := publisher.PublishOrderEvent(context.Background(), "order.created", nil); err == nil {
		t.Fatal("expected error for nil order")
	}
}
