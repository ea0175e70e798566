package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotLock serializes booking creation per specialist slot. It narrows the
// window between the availability read and the insert; the partial unique
// index on bookings is the hard guarantee behind it.
type SlotLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSlotLock creates a slot lock. A nil client disables locking (every
// acquire succeeds), which keeps single-node dev setups working.
func NewSlotLock(client *redis.Client, ttl time.Duration) *SlotLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SlotLock{client: client, ttl: ttl}
}

func slotKey(specialistID string, date time.Time, startTime string) string {
	return fmt.Sprintf("slotlock:%s:%s:%s", specialistID, date.Format("2006-01-02"), startTime)
}

// Acquire takes the lock for a slot. Returns false when another booking
// attempt currently holds it.
func (l *SlotLock) Acquire(ctx context.Context, specialistID string, date time.Time, startTime string) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, slotKey(specialistID, date, startTime), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("booking: acquire slot lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock early; the TTL covers crashed holders.
func (l *SlotLock) Release(ctx context.Context, specialistID string, date time.Time, startTime string) {
	if l.client == nil {
		return
	}
	l.client.Del(ctx, slotKey(specialistID, date, startTime))
}
