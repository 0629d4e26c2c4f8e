package lock

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestAcquireIsMutuallyExclusive(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewClientWithHolder(rdb, "holder-a")
	b := NewClientWithHolder(rdb, "holder-b")

	ok, err := a.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenewOnlyByHolder(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewClientWithHolder(rdb, "holder-a")
	b := NewClientWithHolder(rdb, "holder-b")

	ok, err := a.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	renewed, err := a.Renew(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed)

	renewed, err = b.Renew(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, renewed)
}

func TestRenewFailsWhenLockGone(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewClientWithHolder(rdb, "holder-a")

	renewed, err := a.Renew(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, renewed)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewClientWithHolder(rdb, "holder-a")
	b := NewClientWithHolder(rdb, "holder-b")

	ok, err := a.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A release by a non-holder leaves the lock intact
	require.NoError(t, b.Release(ctx, "lock:test"))
	holder, err := a.CurrentHolder(ctx, "lock:test")
	require.NoError(t, err)
	assert.Equal(t, "holder-a", holder)

	require.NoError(t, a.Release(ctx, "lock:test"))
	holder, err = a.CurrentHolder(ctx, "lock:test")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestClearStaleRemovesDeadHolderLock(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	// PID 1 is init and always alive; an absurdly large PID is not
	dead := NewClientWithHolder(rdb, "999999999")
	ok, err := dead.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	c := NewClient(rdb)
	cleared, err := c.ClearStale(ctx, "lock:test")
	require.NoError(t, err)
	assert.True(t, cleared)

	ok, err = c.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClearStaleKeepsLiveHolderLock(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	// Our own PID is alive by definition
	live := NewClientWithHolder(rdb, strconv.Itoa(os.Getpid()))
	ok, err := live.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	other := NewClientWithHolder(rdb, "other")
	cleared, err := other.ClearStale(ctx, "lock:test")
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestClearStaleTreatsNonNumericHolderAsAlive(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	named := NewClientWithHolder(rdb, "scheduler-on-another-host")
	ok, err := named.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	c := NewClient(rdb)
	cleared, err := c.ClearStale(ctx, "lock:test")
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestForceClearReturnsPreviousHolder(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	a := NewClientWithHolder(rdb, "holder-a")
	ok, err := a.Acquire(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	b := NewClientWithHolder(rdb, "holder-b")
	previous, err := b.ForceClear(ctx, "lock:test")
	require.NoError(t, err)
	assert.Equal(t, "holder-a", previous)

	holder, err := b.CurrentHolder(ctx, "lock:test")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestDeviceKey(t *testing.T) {
	assert.Equal(t, "lock:device:42", DeviceKey(42))
}
