package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"hotel-booking/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis so the
// tests need no real Redis server.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func TestConfirmLock_AcquireRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	lock := NewConfirmLock(client, logger.NewNop())

	acquired, err := lock.Acquire("booking-1")
	require.NoError(t, err)
	assert.True(t, acquired, "First acquire should succeed")

	acquired, err = lock.Acquire("booking-1")
	require.NoError(t, err)
	assert.False(t, acquired, "Second acquire on the same booking should fail")

	acquired, err = lock.Acquire("booking-2")
	require.NoError(t, err)
	assert.True(t, acquired, "Different booking should lock independently")

	lock.Release("booking-1")

	acquired, err = lock.Acquire("booking-1")
	require.NoError(t, err)
	assert.True(t, acquired, "Acquire should succeed after release")
}

func TestConfirmLock_ExpiresOnItsOwn(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	lock := NewConfirmLock(client, logger.NewNop())

	acquired, err := lock.Acquire("booking-ttl")
	require.NoError(t, err)
	require.True(t, acquired)

	// miniredis only advances TTLs manually
	mr.FastForward(31 * time.Second)

	acquired, err = lock.Acquire("booking-ttl")
	require.NoError(t, err)
	assert.True(t, acquired, "Lease should expire without an explicit release")
}

func TestConfirmLock_SingleWinnerUnderContention(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	lock := NewConfirmLock(client, logger.NewNop())

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := lock.Acquire("booking-contended")
			if err == nil && acquired {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "Exactly one concurrent acquire should win")
}
