package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "checkin:lock:a:b", Key("checkin", "lock", "", "a", "b"))
	assert.Equal(t, "", Key())
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	token, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, l.Unlock(ctx, "k", "someone-else"), ErrNotHeld)
	require.NoError(t, l.Unlock(ctx, "k", token))
	assert.ErrorIs(t, l.Unlock(ctx, "k", token), ErrNotHeld)

	_, ok, err = l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	l := NewMemoryLockerWithClock(func() time.Time { return now })

	_, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)

	now = now.Add(61 * time.Second)
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestMemoryLocker_ExpiredHolderCannotReleaseNewLease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	l := NewMemoryLockerWithClock(func() time.Time { return now })

	first, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	second, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)
	require.NotEqual(t, first, second)

	// the first lease's late release leaves the second holder in place
	assert.ErrorIs(t, l.Unlock(ctx, "k", first), ErrNotHeld)
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Unlock(ctx, "k", second))
}

func TestMemoryLocker_SingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.TryLock(ctx, "k", time.Minute); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, RedisOptions{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	a := NewRedisLocker(client, "checkin-test")
	b := NewRedisLocker(client, "checkin-test")
	key := uuid.NewString()

	tokenA, ok, err := a.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = b.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Unlock(ctx, key, "not-the-owner"), ErrNotHeld)
	require.NoError(t, a.Unlock(ctx, key, tokenA))

	tokenB, ok, err := b.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// a stale release from the first holder does not free the key
	assert.ErrorIs(t, a.Unlock(ctx, key, tokenA), ErrNotHeld)
	_, ok, err = a.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Unlock(ctx, key, tokenB))
}
