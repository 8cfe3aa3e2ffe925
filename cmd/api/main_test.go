package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/cache"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
)

func TestExplanationCache_OffWithoutTTL(t *testing.T) {
	assert.Nil(t, explanationCache(&config.PredictionConfig{CacheTTLSeconds: 0, CacheSize: 10}, nil))
}

func TestExplanationCache_InProcessWithoutRedis(t *testing.T) {
	provider := explanationCache(&config.PredictionConfig{CacheTTLSeconds: 60, CacheSize: 2}, nil)
	require.NotNil(t, provider)

	memory, ok := provider.(*cache.MemoryAdapter)
	require.True(t, ok, "expected the in-process cache, got %T", provider)

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, memory.Set(ctx, key, []byte(key), 60))
	}
	assert.Equal(t, 2, memory.Len())
}
