package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestMutexTryLock(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	first := NewMutex(client, SweepLockKey(), "holder-a", time.Minute)
	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	second := NewMutex(client, SweepLockKey(), "holder-b", time.Minute)
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMutexUnlockRequiresOwnership(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	owner := NewMutex(client, SweepLockKey(), "holder-a", time.Minute)
	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A stranger's unlock must not release the owner's lock.
	stranger := NewMutex(client, SweepLockKey(), "holder-b", time.Minute)
	require.NoError(t, stranger.Unlock(ctx))

	ok, err = stranger.TryLock(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBalanceLockKeyShape(t *testing.T) {
	require.Equal(t, "ledger:balance:7:2026-03-10:lock", BalanceLockKey(7, "2026-03-10"))
}
