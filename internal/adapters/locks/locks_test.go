package locks

import (
	"context"
	"fleet-route-engine/internal/ports"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l, err := NewRedisLocker(client, time.Minute)
	require.NoError(t, err)
	return l, mr
}

func TestRedisLockerExclusive(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("route-lease:r1"))

	_, err = l.Lock(ctx, "r1")
	assert.ErrorIs(t, err, ports.ErrRouteBusy)

	other, err := l.Lock(ctx, "r2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("route-lease:r1"))

	again, err := l.Lock(ctx, "r1")
	require.NoError(t, err)
	again()
}

func TestRedisLockerLeaseExpires(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	stale, err := l.Lock(ctx, "r1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	fresh, err := l.Lock(ctx, "r1")
	require.NoError(t, err)

	// Releasing the expired lease must not drop the new holder's lease.
	stale()
	assert.True(t, mr.Exists("route-lease:r1"))

	fresh()
	assert.False(t, mr.Exists("route-lease:r1"))
}

func TestNewRedisLockerValidates(t *testing.T) {
	_, err := NewRedisLocker(nil, time.Minute)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	_, err = NewRedisLocker(client, 0)
	assert.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "r1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "r1")
	assert.ErrorIs(t, err, ports.ErrRouteBusy)

	unlock()
	unlock()

	again, err := l.Lock(ctx, "r1")
	require.NoError(t, err)
	again()
}
