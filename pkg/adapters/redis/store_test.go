package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave/pkg/adapters/redis"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

var (
	_ ports.StateStore        = (*redis.Store)(nil)
	_ ports.DistributedLocker = (*redis.Locker)(nil)
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunStateStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_KeysAndTTL(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("lab:"), redis.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", domain.NewState("s1")))
	assert.True(t, mr.Exists("lab:session:s1"))
	assert.Equal(t, time.Minute, mr.TTL("lab:session:s1"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisLocker(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	l1 := redis.NewLocker(client, "weave:")
	l2 := redis.NewLocker(client, "weave:")

	unlock, err := l1.Lock(ctx, "s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("weave:lock:s1"))

	t.Run("Contention times out", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
		defer cancel()
		_, err := l2.Lock(short, "s1", time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Other keys are independent", func(t *testing.T) {
		u, err := l2.Lock(ctx, "s2", time.Second)
		require.NoError(t, err)
		require.NoError(t, u(ctx))
	})

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("weave:lock:s1"))

	t.Run("Acquire after release", func(t *testing.T) {
		u, err := l2.Lock(ctx, "s1", time.Second)
		require.NoError(t, err)

		// A stale unlock from the previous holder must not release the new lock.
		require.NoError(t, unlock(ctx))
		assert.True(t, mr.Exists("weave:lock:s1"))
		require.NoError(t, u(ctx))
	})
}
