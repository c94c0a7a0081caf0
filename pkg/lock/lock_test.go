package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewService(client), mr
}

func TestAcquire_GrantsAndBlocksSecondHolder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	held, ok, err := svc.Acquire(ctx, "sokovan:target:pending", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, held)

	shortCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, ok, err = svc.Acquire(shortCtx, "sokovan:target:pending", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquire_GrantedAfterRelease(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	held, ok, err := svc.Acquire(ctx, "sokovan:target:preparing", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, held.Release(ctx))

	held2, ok, err := svc.Acquire(ctx, "sokovan:target:preparing", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, held2.Release(ctx))
}

func TestRelease_NotHeldAfterTakeover(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	held, ok, err := svc.Acquire(ctx, "sokovan:target:creating", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate lease expiry and takeover by a second holder.
	mr.Del("sessiond:lock:sokovan:target:creating")
	held2, ok, err := svc.Acquire(ctx, "sokovan:target:creating", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = held.Release(ctx)
	assert.NoError(t, err, "release of an already-expired lock is a no-op, not an error")

	// The new holder's lock must still be in place.
	err = held2.Renew(ctx)
	assert.NoError(t, err)
}

func TestRenew_FailsForWrongHolder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	held, ok, err := svc.Acquire(ctx, "sokovan:target:terminating", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release(ctx)

	l, ok := held.(*Lock)
	require.True(t, ok)
	other := &Lock{service: svc, key: l.key, holderID: "not-the-holder", lease: time.Minute}

	err = other.Renew(ctx)
	assert.ErrorIs(t, err, ErrNotHeld)
}
