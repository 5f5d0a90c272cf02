package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/fetch-gateway/internal/circuitbreaker"
)

// ErrStoreUnavailable wraps any failure of the counter store. Callers treat it
// as "no limiting for this request", never as a request failure.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// CounterStore is the shared state behind rate and usage counters. Incr must be
// atomic across concurrent callers; no additional locking is done here.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Count(ctx context.Context, key string) (int64, error)
}

// BreakerStore fails fast while the underlying store keeps erroring
type BreakerStore struct {
	store   CounterStore
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerStore(store CounterStore, breaker *circuitbreaker.CircuitBreaker) *BreakerStore {
	return &BreakerStore{store: store, breaker: breaker}
}

func (b *BreakerStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		n, err = b.store.Incr(ctx, key)
		return err
	})
	return n, err
}

func (b *BreakerStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.breaker.Call(ctx, func(ctx context.Context) error {
		return b.store.Expire(ctx, key, ttl)
	})
}

func (b *BreakerStore) Count(ctx context.Context, key string) (int64, error) {
	var n int64
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		n, err = b.store.Count(ctx, key)
		return err
	})
	return n, err
}

func (b *BreakerStore) Breaker() *circuitbreaker.CircuitBreaker {
	return b.breaker
}
