package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	usageRetention = 30 * 24 * time.Hour
	dayLayout      = "2006-01-02"
)

// DailyUsage is the request count of one key on one UTC calendar day
type DailyUsage struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// UsageMeter keeps per-key-per-day counters for billing. It never blocks requests.
type UsageMeter struct {
	store CounterStore
	now   func() time.Time
}

func NewUsageMeter(store CounterStore) *UsageMeter {
	return &UsageMeter{store: store, now: time.Now}
}

func usageKey(id string, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s", id, day.UTC().Format(dayLayout))
}

// Record counts one request for id on the current day
func (u *UsageMeter) Record(ctx context.Context, id string) (int64, error) {
	key := usageKey(id, u.now())

	count, err := u.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrStoreUnavailable, key, err)
	}

	if count == 1 {
		if err := u.store.Expire(ctx, key, usageRetention); err != nil {
			return count, fmt.Errorf("%w: expire %s: %v", ErrStoreUnavailable, key, err)
		}
	}

	return count, nil
}

// Usage returns the last days of counters for id, most recent first
func (u *UsageMeter) Usage(ctx context.Context, id string, days int) ([]DailyUsage, error) {
	if days <= 0 {
		days = 1
	}
	if maxDays := int(usageRetention / (24 * time.Hour)); days > maxDays {
		days = maxDays
	}

	today := u.now().UTC()
	usage := make([]DailyUsage, 0, days)
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, -i)
		count, err := u.store.Count(ctx, usageKey(id, day))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		usage = append(usage, DailyUsage{
			Date:  day.Format(dayLayout),
			Count: count,
		})
	}

	return usage, nil
}
