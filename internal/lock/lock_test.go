package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	locker, err := NewRedisLocker(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { locker.Close() })
	return locker, mr
}

func TestRedisLocker_AcquireIsExclusive(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "invoices:2025-01", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "invoices:2025-01", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// A different key is independent.
	other, err := locker.Acquire(ctx, "invoices:2025-02", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("fitness-billing:lock:invoices:2025-01"))

	again, err := locker.Acquire(ctx, "invoices:2025-01", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "overdue", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	current, err := locker.Acquire(ctx, "overdue", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("fitness-billing:lock:overdue"), "new holder's lock must survive")

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("fitness-billing:lock:overdue"))
}

func TestRedisLocker_TTLIsSet(t *testing.T) {
	locker, mr := newTestLocker(t)

	_, err := locker.Acquire(context.Background(), "ttl", 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, mr.TTL("fitness-billing:lock:ttl"))
}

func TestNewRedisLocker_Errors(t *testing.T) {
	_, err := NewRedisLocker(context.Background(), "invalid://url")
	assert.Error(t, err)

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisLocker(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var l Locker = Noop{}
	a, err := l.Acquire(context.Background(), "x", time.Second)
	require.NoError(t, err)
	b, err := l.Acquire(context.Background(), "x", time.Second)
	require.NoError(t, err)
	assert.NoError(t, a.Release(context.Background()))
	assert.NoError(t, b.Release(context.Background()))
}
