package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 进程内 L1，基于 ristretto。
// TTL 比 Redis 短，多实例之间最多不一致这么久。
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache maxItems 按条目数限制（每条 cost=1）。
func NewLocalCache(maxItems int64) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    c,
		ttl:      5 * time.Minute,
		emptyTTL: 10 * time.Second,
	}, nil
}

func (l *LocalCache) Get(code string) (string, bool) {
	v, ok := l.cache.Get(code)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (l *LocalCache) Set(code, url string) {
	l.cache.SetWithTTL(code, url, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(code string) {
	l.cache.SetWithTTL(code, notFoundSentinel, 1, l.emptyTTL)
}

func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

// Wait 等待异步写入生效
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
