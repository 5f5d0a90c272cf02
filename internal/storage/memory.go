package storage

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps counters and cached values in process. It is used when no
// Redis host is configured, so quotas are only enforced per instance.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.cache.Add(key, int64(1), cache.NoExpiration); err == nil {
		return 1, nil
	}

	n, err := m.cache.IncrementInt64(key, 1)
	if err != nil {
		// Key holds a non-counter value, reset it like a fresh counter
		m.cache.Set(key, int64(1), cache.NoExpiration)
		return 1, nil
	}
	return n, nil
}

// Re-stores the current value of key with the new ttl
func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, found := m.cache.Get(key)
	if !found {
		return nil
	}
	m.cache.Set(key, val, ttl)
	return nil
}

func (m *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, found := m.cache.Get(key)
	if !found {
		return 0, nil
	}
	n, _ := val.(int64)
	return n, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	val, found := m.cache.Get(key)
	if !found {
		return "", ErrNotFound
	}
	s, ok := val.(string)
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.cache.Set(key, value, ttl)
	return nil
}

func (m *MemoryStore) Del(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
