package redisfifo

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

func newTestCache(t *testing.T, capacity int) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Options{Prefix: "test", Capacity: capacity}), mr
}

func TestCacheRoundTripsResponse(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 4)

	cache.Put(ctx, "k", &domain.Response{
		Answer:           "IIT Bombay is ranked 3rd.",
		Category:         domain.CategoryCollege,
		Entities:         domain.EntitySet{Colleges: []string{"IIT Bombay"}},
		HasLocalEvidence: true,
	})

	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "IIT Bombay is ranked 3rd.", got.Answer)
	assert.Equal(t, domain.CategoryCollege, got.Category)
	assert.Equal(t, "IIT Bombay", got.Entities.Primary())
	assert.True(t, got.HasLocalEvidence)
}

func TestCacheMissReturnsFalse(t *testing.T) {
	cache, _ := newTestCache(t, 4)
	got, ok := cache.Get(context.Background(), "absent")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCacheEvictsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 2)

	cache.Put(ctx, "a", &domain.Response{Answer: "A"})
	cache.Put(ctx, "b", &domain.Response{Answer: "B"})
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	cache.Put(ctx, "c", &domain.Response{Answer: "C"})

	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted even after a read")
	assert.Equal(t, 2, cache.Len(ctx))

	order, err := mr.List("{test}:order")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, order)
}

func TestCacheDuplicatePutKeepsSlot(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 2)

	cache.Put(ctx, "a", &domain.Response{Answer: "old"})
	cache.Put(ctx, "b", &domain.Response{Answer: "B"})
	cache.Put(ctx, "a", &domain.Response{Answer: "new"})

	got, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "new", got.Answer)

	order, err := mr.List("{test}:order")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestCacheBoundedUnderManyPuts(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, 5)
	for i := 0; i < 20; i++ {
		cache.Put(ctx, fmt.Sprintf("k%d", i), &domain.Response{Answer: fmt.Sprint(i)})
	}
	assert.Equal(t, 5, cache.Len(ctx))
	_, ok := cache.Get(ctx, "k15")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "k14")
	assert.False(t, ok)
}

func TestCacheDegradesWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 2)
	mr.Close()

	assert.NotPanics(t, func() {
		cache.Put(ctx, "a", &domain.Response{Answer: "A"})
	})
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(ctx))
}

func TestCacheIgnoresUndecodableEntry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 2)
	mr.HSet("{test}:entries", "bad", "{not json")

	_, ok := cache.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestCacheKeysShareClusterSlot(t *testing.T) {
	cache := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), Options{})
	t.Cleanup(func() { _ = cache.client.Close() })

	assert.Equal(t, "{admissions-rag:responses}:entries", cache.hashKey)
	assert.Equal(t, "{admissions-rag:responses}:order", cache.listKey)
}

func TestCacheWritesUnderHashTaggedKeys(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, 4)

	cache.Put(ctx, "k", &domain.Response{Answer: "A"})

	assert.True(t, mr.Exists("{test}:entries"))
	assert.True(t, mr.Exists("{test}:order"))
	assert.False(t, mr.Exists("test:entries"))
}
