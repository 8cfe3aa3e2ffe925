package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
)

func TestMemoryAdapter_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter(8, 0)

	_, err := c.Get(ctx, "k")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))
}

func TestMemoryAdapter_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	c := NewMemoryAdapter(8, time.Hour)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 60))

	now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = c.Get(ctx, "k")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryAdapter_BoundedSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter(2, 0)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))
	assert.Equal(t, 2, c.Len())

	_, err = c.Get(ctx, "b")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss), "least recently used entry is evicted")
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("x"), 60))
	}
	assert.Equal(t, 2, c.Len())
}

func TestMemoryAdapter_AdapterTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter(8, 20*time.Millisecond)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "k")
		return errors.Is(err, providers.ErrCacheMiss)
	}, time.Second, 5*time.Millisecond)
}

func TestNewMemoryAdapter_DefaultSize(t *testing.T) {
	c := NewMemoryAdapter(0, 0)
	ctx := context.Background()
	for i := 0; i < DefaultMemorySize+10; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("x"), 0))
	}
	assert.Equal(t, DefaultMemorySize, c.Len())
}
