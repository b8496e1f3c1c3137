package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider, err := NewMemoryProvider(0)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	if err := provider.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := provider.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired Get() error = %v, want ErrNotFound", err)
	}
	if provider.Len() != 0 {
		t.Fatalf("expired entry was not removed")
	}
}

func TestMemoryProviderEvictsOldest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider, err := NewMemoryProvider(2)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		_ = provider.Set(ctx, key, key, 0)
	}
	if _, err := provider.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("oldest key survived eviction")
	}
	if _, err := provider.Get(ctx, "c"); err != nil {
		t.Fatalf("newest key missing: %v", err)
	}

	_ = provider.Delete(ctx, "c")
	if _, err := provider.Get(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key still present")
	}
}

func TestWebhookKeyAndDigest(t *testing.T) {
	t.Parallel()

	digest := PayloadDigest([]byte(`{"status":"paid"}`))
	if len(digest) != 64 || digest != PayloadDigest([]byte(`{"status":"paid"}`)) {
		t.Fatalf("digest not stable: %s", digest)
	}
	if digest == PayloadDigest([]byte(`{"status":"failed"}`)) {
		t.Fatal("different payloads share a digest")
	}
	if got := WebhookKey("kashier", "abc"); got != "webhook:kashier:abc" {
		t.Fatalf("WebhookKey() = %q", got)
	}
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider(Config{Provider: "memcached"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	provider, err := NewProvider(Config{})
	if err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if _, ok := provider.(*MemoryProvider); !ok {
		t.Fatalf("default provider = %T, want *MemoryProvider", provider)
	}
}
