//go:build integration

package cache

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
)

func TestRedisAdapterIntegration(t *testing.T) {
	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	ctx := context.Background()
	client, err := redisclient.NewClient(ctx, &config.RedisConfig{Enabled: true, Host: host, Port: 6379})
	require.NoError(t, err)
	defer client.Close()

	prefix := "readmit-test:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"
	adapter := NewRedisAdapter(client, prefix)

	_, err = adapter.Get(ctx, "explain:abc")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))

	require.NoError(t, adapter.Set(ctx, "explain:abc", []byte(`{"risk_label":"High risk"}`), 60))
	value, err := adapter.Get(ctx, "explain:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk_label":"High risk"}`, string(value))

	raw, err := client.Client().Get(ctx, prefix+"explain:abc").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	require.NoError(t, adapter.Delete(ctx, "explain:abc"))
	_, err = adapter.Get(ctx, "explain:abc")
	assert.True(t, errors.Is(err, providers.ErrCacheMiss))
}
