package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/platform/metrics"
)

const (
	keyPrefix = "lz:"
	// 负缓存哨兵，不能是合法 URL
	notFoundSentinel = "__nil__"
	// 单次 Redis 操作最多等这么久，超时按未命中处理
	redisTimeout = 50 * time.Millisecond
)

// LinkCache L1 ristretto + L2 Redis 的跳转缓存，实现 linkzip.LinkCache。
// local 或 client 为 nil 时跳过对应的层。
type LinkCache struct {
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewLinkCache(client *redis.Client, local *LocalCache, ttl time.Duration) *LinkCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkCache{
		client:   client,
		local:    local,
		ttl:      ttl,
		emptyTTL: 30 * time.Second,
	}
}

var _ linkzip.LinkCache = (*LinkCache)(nil)

func status(v string) (string, linkzip.CacheStatus) {
	if v == notFoundSentinel {
		return "", linkzip.CacheNotFound
	}
	return v, linkzip.CacheHit
}

func result(st linkzip.CacheStatus) string {
	if st == linkzip.CacheNotFound {
		return "hit_negative"
	}
	return "hit"
}

func (c *LinkCache) Get(ctx context.Context, code string) (string, linkzip.CacheStatus) {
	if c.local != nil {
		if v, ok := c.local.Get(code); ok {
			u, st := status(v)
			metrics.CacheOperations.WithLabelValues("l1", result(st)).Inc()
			return u, st
		}
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	}
	if c.client == nil {
		return "", linkzip.CacheMiss
	}

	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	v, err := c.client.Get(rctx, keyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return "", linkzip.CacheMiss
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		slog.Warn("cache: redis get failed", "err", err, "code", code)
		return "", linkzip.CacheMiss
	}

	u, st := status(v)
	metrics.CacheOperations.WithLabelValues("l2", result(st)).Inc()
	// 回填 L1
	if c.local != nil {
		if st == linkzip.CacheNotFound {
			c.local.SetNotFound(code)
		} else {
			c.local.Set(code, u)
		}
	}
	return u, st
}

func (c *LinkCache) Set(ctx context.Context, code, url string) {
	if c.local != nil {
		c.local.Set(code, url)
	}
	c.redisSet(ctx, code, url, c.ttl)
}

// SetNotFound 负缓存，防止不存在的短码反复打到数据库
func (c *LinkCache) SetNotFound(ctx context.Context, code string) {
	if c.local != nil {
		c.local.SetNotFound(code)
	}
	c.redisSet(ctx, code, notFoundSentinel, c.emptyTTL)
}

func (c *LinkCache) Delete(ctx context.Context, code string) {
	if c.local != nil {
		c.local.Del(code)
	}
	if c.client == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := c.client.Del(rctx, keyPrefix+code).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		slog.Warn("cache: redis del failed", "err", err, "code", code)
	}
}

func (c *LinkCache) redisSet(ctx context.Context, code, v string, ttl time.Duration) {
	if c.client == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := c.client.Set(rctx, keyPrefix+code, v, ttl).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		slog.Warn("cache: redis set failed", "err", err, "code", code)
	}
}

func (c *LinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("local cache closed")
	}
}
