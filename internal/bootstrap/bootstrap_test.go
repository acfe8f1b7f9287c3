package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/admissions-rag/internal/config"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/cache/memory"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/queue/nats"
)

func TestResilienceConfigMapsSettings(t *testing.T) {
	rc := resilienceConfig(config.Config{
		ResilienceRetryMaxAttempts:    5,
		ResilienceRetryInitialBackoff: 50 * time.Millisecond,
		ResilienceRetryMaxBackoff:     time.Second,
		ResilienceRetryJitter:         0.1,
		ResilienceGenerationAttempts:  1,
		ResilienceBreakerEnabled:      true,
		ResilienceBreakerMinRequests:  4,
		ResilienceBreakerFailureRatio: 0.25,
		ResilienceBreakerOpenTimeout:  time.Minute,
	})

	assert.Equal(t, 5, rc.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, rc.Retry.InitialBackoff)
	assert.Equal(t, time.Second, rc.Retry.MaxBackoff)
	assert.Equal(t, 0.1, rc.Retry.Jitter)
	assert.Equal(t, 2.0, rc.Retry.Multiplier)
	assert.True(t, rc.Breaker.Enabled)
	assert.Equal(t, uint32(4), rc.Breaker.MinRequests)
	assert.Equal(t, 0.25, rc.Breaker.FailureRatio)
	assert.Equal(t, time.Minute, rc.Breaker.OpenTimeout)
	assert.Equal(t, 1, rc.Operations["ollama.generate"].MaxAttempts)
	assert.Equal(t, 1, rc.Operations["ollama.generate_stream"].MaxAttempts)
	assert.Equal(t, 1, rc.Operations[nats.RecordOperation].MaxAttempts)
	_, pinned := rc.Operations[nats.PublishOperation]
	assert.False(t, pinned)
}

func TestResponseCacheDefaultsToMemory(t *testing.T) {
	cache, err := newResponseCache(context.Background(), config.Config{CacheCapacity: 4})
	require.NoError(t, err)
	assert.IsType(t, &memory.FIFO{}, cache)
}

func TestResponseCacheUsesRedisWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := newResponseCache(context.Background(), config.Config{RedisURL: "redis://" + mr.Addr() + "/0", CacheCapacity: 4})
	require.NoError(t, err)
	closer, ok := cache.(*closingCache)
	require.True(t, ok, "expected redis-backed cache, got %T", cache)
	assert.Equal(t, 0, cache.Len(context.Background()))
	assert.NoError(t, closer.Close())
}

func TestResponseCacheRejectsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := newResponseCache(context.Background(), config.Config{RedisURL: "redis://" + addr})
	assert.Error(t, err)
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []int
	app := &App{}
	app.onClose(func() { order = append(order, 1) })
	app.onClose(func() { order = append(order, 2) })

	app.Close()
	app.Close()

	assert.Equal(t, []int{2, 1}, order)
}
