package redisfifo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

const (
	DefaultCapacity = 128
	DefaultPrefix   = "admissions-rag:responses"
)

// putScript stores one entry and trims the insertion list to capacity.
// KEYS: hash, order list. ARGV: field, value, capacity.
// An existing field is overwritten without touching its list position.
var putScript = redis.NewScript(`
local existed = redis.call('HEXISTS', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if existed == 1 then
  return redis.call('HLEN', KEYS[1])
end
redis.call('RPUSH', KEYS[2], ARGV[1])
local capacity = tonumber(ARGV[3])
while redis.call('LLEN', KEYS[2]) > capacity do
  local oldest = redis.call('LPOP', KEYS[2])
  redis.call('HDEL', KEYS[1], oldest)
end
return redis.call('HLEN', KEYS[1])
`)

type Options struct {
	Prefix   string
	Capacity int
	// Timeout bounds every Redis round trip.
	Timeout time.Duration
}

// Cache is a FIFO response cache shared by every replica pointing at the
// same Redis. Redis failures degrade to misses and are logged.
type Cache struct {
	client   redis.UniversalClient
	hashKey  string
	listKey  string
	capacity int
	timeout  time.Duration
}

func New(client redis.UniversalClient, options Options) *Cache {
	prefix := options.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	capacity := options.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Cache{
		client:   client,
		hashKey:  keyFor(prefix, "entries"),
		listKey:  keyFor(prefix, "order"),
		capacity: capacity,
		timeout:  timeout,
	}
}

// keyFor hash-tags the prefix so the script's keys share a Cluster slot.
func keyFor(prefix, suffix string) string {
	return "{" + prefix + "}:" + suffix
}

func (c *Cache) Get(ctx context.Context, key string) (*domain.Response, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.HGet(ctx, c.hashKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("response_cache_get_failed", "backend", "redis", "error", err)
		return nil, false
	}
	var resp domain.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("response_cache_decode_failed", "backend", "redis", "error", err)
		return nil, false
	}
	return &resp, true
}

func (c *Cache) Put(ctx context.Context, key string, resp *domain.Response) {
	if resp == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("response_cache_encode_failed", "backend", "redis", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := putScript.Run(ctx, c.client, []string{c.hashKey, c.listKey}, key, raw, c.capacity).Err(); err != nil {
		slog.Warn("response_cache_put_failed", "backend", "redis", "error", err)
	}
}

func (c *Cache) Len(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.HLen(ctx, c.hashKey).Result()
	if err != nil {
		slog.Warn("response_cache_len_failed", "backend", "redis", "error", err)
		return 0
	}
	return int(n)
}
