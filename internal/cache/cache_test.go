package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))
		val, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "v1", string(val))
	})

	t.Run("Miss", func(t *testing.T) {
		val, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
		now = now.Add(2 * time.Second)
		val, err := c.Get(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "gone", []byte("x"), 0))
		require.NoError(t, c.Delete(ctx, "gone"))
		val, err := c.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, val)
	})
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	assert.Equal(t, 2, c.Len())
	val, _ := c.Get(ctx, "b")
	assert.Nil(t, val)
	val, _ = c.Get(ctx, "a")
	assert.Equal(t, "1", string(val))
}

func TestNewSelectsBackend(t *testing.T) {
	c, err := New(Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = New(Config{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New(Config{Type: "memcached"})
	require.Error(t, err)
}
