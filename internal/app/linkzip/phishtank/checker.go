package phishtank

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/platform/metrics"
)

// Checker 黑名单查询。布隆过滤器挡在存储前面：
// 绝大多数正常 URL 在过滤器里就能确定不在黑名单，不用查库。
type Checker struct {
	store linkzip.PhishStore

	mu     sync.RWMutex
	filter *bloom.BloomFilter // nil 表示还没加载，直接查库
}

// NewChecker store 为 nil 时 Checker 处于关闭状态，所有 URL 都是干净的。
func NewChecker(store linkzip.PhishStore) *Checker {
	return &Checker{store: store}
}

var _ linkzip.PhishChecker = (*Checker)(nil)

func (c *Checker) Enabled() bool {
	return c != nil && c.store != nil
}

func (c *Checker) Check(ctx context.Context, url string) (*linkzip.Phish, error) {
	if !c.Enabled() {
		return nil, nil
	}
	c.mu.RLock()
	f := c.filter
	c.mu.RUnlock()
	if f != nil && !f.TestString(url) {
		return nil, nil
	}
	return c.store.FindPhish(ctx, url)
}

// Rebuild 从存储重新加载过滤器，返回条目数。
func (c *Checker) Rebuild(ctx context.Context) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	var urls []string
	if err := c.store.PhishURLs(ctx, func(u string) { urls = append(urls, u) }); err != nil {
		return 0, err
	}

	f := bloom.NewWithEstimates(uint(max(len(urls), 1000)), 0.001)
	for _, u := range urls {
		f.AddString(u)
	}

	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	metrics.PhishTankEntries.Set(float64(len(urls)))
	return len(urls), nil
}
