package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheVersionInitialises(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	// Stable on repeat reads.
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, keyUserPermissions(42)...)
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, keyUserPermissions(42)...)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCacheFetchJSONPopulatesOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, keyUserPermissions(42)...)
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return []string{"reports.view"}, nil
	}

	var first []string
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, []string{"reports.view"}, first)

	var second []string
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestCacheFetchJSONReloadsAfterBump(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return []string{"reports.view"}, nil
	}

	key, err := cache.BuildKey(ctx, keyUserPermissions(42)...)
	require.NoError(t, err)
	var out []string
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))

	require.NoError(t, cache.Bump(ctx))

	key, err = cache.BuildKey(ctx, keyUserPermissions(42)...)
	require.NoError(t, err)
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, calls)
}

func TestNilCacheFallsThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	require.NoError(t, cache.Bump(ctx))

	var out []string
	err := cache.FetchJSON(ctx, "any", &out, func(context.Context) (interface{}, error) {
		return []string{"users.edit"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"users.edit"}, out)
}
