package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmatch/backend/internal/domain"
)

func newTestSQLiteCache(t *testing.T) *SQLiteCache {
	t.Helper()
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestNewSQLiteCache_RequiresPath(t *testing.T) {
	_, err := NewSQLiteCache("")
	assert.Error(t, err)
}

func TestSQLiteCache_SetGet(t *testing.T) {
	cache := newTestSQLiteCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "value", time.Hour))

	got, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestSQLiteCache_MissingKey(t *testing.T) {
	cache := newTestSQLiteCache(t)

	_, err := cache.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))
}

func TestSQLiteCache_Expiration(t *testing.T) {
	cache := newTestSQLiteCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "value", -2*time.Second))

	_, err := cache.Get(ctx, "key")
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))

	exists, err := cache.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteCache_Upsert(t *testing.T) {
	cache := newTestSQLiteCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "first", time.Hour))
	require.NoError(t, cache.Set(ctx, "key", "second", time.Hour))

	got, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestSQLiteCache_Delete(t *testing.T) {
	cache := newTestSQLiteCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "value", time.Hour))
	require.NoError(t, cache.Delete(ctx, "key"))

	_, err := cache.Get(ctx, "key")
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))
}

func TestSQLiteCache_Prune(t *testing.T) {
	cache := newTestSQLiteCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "stale", "value", -2*time.Second))
	require.NoError(t, cache.Set(ctx, "fresh", "value", time.Hour))

	require.NoError(t, cache.Prune(ctx))

	exists, err := cache.Exists(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := cache.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestSQLiteCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := NewSQLiteCache(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "key", "value", time.Hour))
	require.NoError(t, first.Close())

	second, err := NewSQLiteCache(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestSQLiteCache_JSONRoundTrip(t *testing.T) {
	cache := newTestSQLiteCache(t)
	ctx := context.Background()

	// Retrieval results are stored as JSON strings by the pipeline; the
	// round trip must hand back the same string.
	encoded := `[{"id":"cat-1","title":"Whole Milk"}]`
	require.NoError(t, cache.Set(ctx, "retrieval:brand:name:store", encoded, time.Hour))

	got, err := cache.Get(ctx, "retrieval:brand:name:store")
	require.NoError(t, err)
	assert.Equal(t, encoded, got)
}
