package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MemoryProvider struct {
	cache *lru.Cache[string, item]
	now   func() time.Time
}

type item struct {
	value     string
	expiresAt time.Time
}

const defaultMemoryCacheSize = 10_000

// NewMemoryProvider returns an LRU backed provider. A size of zero or less uses
// the default capacity.
func NewMemoryProvider(size int) (*MemoryProvider, error) {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c, now: time.Now}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	cached, exists := m.cache.Get(key)
	if !exists {
		return "", ErrNotFound
	}

	if !cached.expiresAt.IsZero() && m.now().After(cached.expiresAt) {
		m.cache.Remove(key)
		return "", ErrNotFound
	}

	return cached.value, nil
}

// Set stores value under key. A ttl of zero keeps the entry until it is evicted.
func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.cache.Add(key, item{
		value:     value,
		expiresAt: expiresAt,
	})
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Len() int {
	return m.cache.Len()
}

func (m *MemoryProvider) Close() error {
	return nil
}
