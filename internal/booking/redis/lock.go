package redis

import (
	"context"
	"os"
	"strconv"
	"time"

	"hotel-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

// ConfirmLock serializes booking confirmation across concurrent payment
// callbacks with a short SetNX lease. Losing the race is harmless, the
// booking status swap is the real guard; the lock only spares the loser
// a wasted round trip.
type ConfirmLock struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewConfirmLock(client *redis.Client, log *logger.Logger) *ConfirmLock {
	return &ConfirmLock{Client: client, Logger: log}
}

// lockTTL reads the lease duration from the environment, defaulting to
// 30 seconds. The lease is never renewed; an expired lease just lets a
// retried callback through to the compare-and-swap.
func (l *ConfirmLock) lockTTL() time.Duration {
	defaultTTL := 30 * time.Second

	ttlStr := os.Getenv("CONFIRM_LOCK_TTL_SECONDS")
	if ttlStr == "" {
		return defaultTTL
	}
	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil || ttlSec <= 0 {
		l.Logger.Warn("REDIS", "Invalid CONFIRM_LOCK_TTL_SECONDS value '"+ttlStr+"', using default 30 seconds")
		return defaultTTL
	}
	return time.Duration(ttlSec) * time.Second
}

func (l *ConfirmLock) Acquire(bookingID string) (bool, error) {
	key := "confirm_lock:" + bookingID
	return l.Client.SetNX(context.Background(), key, "1", l.lockTTL()).Result()
}

func (l *ConfirmLock) Release(bookingID string) {
	key := "confirm_lock:" + bookingID
	if err := l.Client.Del(context.Background(), key).Err(); err != nil {
		l.Logger.Warn("REDIS", "Failed to release confirm lock for booking "+bookingID+": "+err.Error())
	}
}
