package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Count     int64
	Remaining int
	Reset     time.Time
}

// FixedWindowLimiter counts requests per key in fixed, aligned time buckets.
// The first increment in a bucket sets the counter to expire after one window.
type FixedWindowLimiter struct {
	store  CounterStore
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewFixedWindow(store CounterStore, window time.Duration, logger *zap.Logger) *FixedWindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FixedWindowLimiter{
		store:  store,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// NewHourly returns the per-key-per-hour limiter used for API key quotas
func NewHourly(store CounterStore, logger *zap.Logger) *FixedWindowLimiter {
	return NewFixedWindow(store, time.Hour, logger)
}

func (f *FixedWindowLimiter) bucket(now time.Time) int64 {
	return now.Unix() / int64(f.window.Seconds())
}

func (f *FixedWindowLimiter) key(id string, bucket int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", windowName(f.window), id, bucket)
}

// Allow increments the counter for id and compares it with limit
func (f *FixedWindowLimiter) Allow(ctx context.Context, id string, limit int) (Decision, error) {
	now := f.now()
	bucket := f.bucket(now)
	redisKey := f.key(id, bucket)

	count, err := f.store.Incr(ctx, redisKey)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: incr %s: %v", ErrStoreUnavailable, redisKey, err)
	}

	if count == 1 {
		if err := f.store.Expire(ctx, redisKey, f.window); err != nil {
			// The key is bucket-scoped, so a missing TTL only leaks memory
			f.logger.Warn("failed to set rate limit expiry",
				zap.String("key", redisKey),
				zap.Error(err),
			)
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Count:     count,
		Remaining: remaining,
		Reset:     f.Reset(now),
	}, nil
}

// Returns the time at which the bucket containing now ends
func (f *FixedWindowLimiter) Reset(now time.Time) time.Time {
	secs := int64(f.window.Seconds())
	return time.Unix((f.bucket(now)+1)*secs, 0)
}

func windowName(window time.Duration) string {
	switch window {
	case time.Hour:
		return "hour"
	case time.Minute:
		return "minute"
	default:
		return window.String()
	}
}
