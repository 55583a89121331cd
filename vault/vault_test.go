package vault

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisVault(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, "test", ttl), mr
}

func vaults(t *testing.T) map[string]Vault {
	redisVault, _ := newRedisVault(t, time.Hour)
	return map[string]Vault{
		"memory": NewMemory(time.Hour),
		"redis":  redisVault,
	}
}

func TestSaveLoadDelete(t *testing.T) {
	for name, v := range vaults(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := v.Load(ctx, "ws-1")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, v.Save(ctx, "ws-1", Credentials{"session": "abc"}))
			creds, err := v.Load(ctx, "ws-1")
			require.NoError(t, err)
			assert.Equal(t, Credentials{"session": "abc"}, creds)

			require.NoError(t, v.Save(ctx, "ws-1", Credentials{"other": "x"}))
			creds, err = v.Load(ctx, "ws-1")
			require.NoError(t, err)
			assert.Equal(t, Credentials{"other": "x"}, creds)

			require.NoError(t, v.Delete(ctx, "ws-1"))
			_, err = v.Load(ctx, "ws-1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveEmptyDeletes(t *testing.T) {
	for name, v := range vaults(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, v.Save(ctx, "ws-1", Credentials{"session": "abc"}))
			require.NoError(t, v.Save(ctx, "ws-1", nil))

			_, err := v.Load(ctx, "ws-1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestClaimIsExclusive(t *testing.T) {
	for name, v := range vaults(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := v.Claim(ctx, "form-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = v.Claim(ctx, "form-1", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, v.Release(ctx, "form-1"))
			ok, err = v.Claim(ctx, "form-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewMemory(time.Minute)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, v.Save(ctx, "ws-1", Credentials{"session": "abc"}))
	ok, err := v.Claim(ctx, "form-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, err = v.Load(ctx, "ws-1")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = v.Claim(ctx, "form-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemorySweepsExpiredEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewMemory(time.Minute)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 1000 {
		ok, err := v.Claim(ctx, fmt.Sprintf("form-%d", i), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, v.Save(ctx, fmt.Sprintf("ws-%d", i), Credentials{"session": "abc"}))
	}

	now = now.Add(time.Hour)

	ok, err := v.Claim(ctx, "form-next", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, v.Save(ctx, "ws-next", Credentials{"session": "def"}))

	assert.Len(t, v.claims, 1)
	assert.Len(t, v.creds, 1)
}

func TestMemoryLoadReturnsCopy(t *testing.T) {
	v := NewMemory(0)
	ctx := context.Background()
	require.NoError(t, v.Save(ctx, "ws-1", Credentials{"session": "abc"}))

	creds, err := v.Load(ctx, "ws-1")
	require.NoError(t, err)
	creds["session"] = "mutated"

	again, err := v.Load(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", again["session"])
}

func TestRedisExpiry(t *testing.T) {
	v, mr := newRedisVault(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, v.Save(ctx, "ws-1", Credentials{"session": "abc"}))
	assert.Equal(t, time.Minute, mr.TTL("test:creds:ws-1"))

	mr.FastForward(2 * time.Minute)

	_, err := v.Load(ctx, "ws-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisUnavailable(t *testing.T) {
	v, mr := newRedisVault(t, time.Minute)
	mr.Close()

	_, err := v.Load(context.Background(), "ws-1")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
