package linkzip

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Link 一条短链。ID 由存储层自增分配，Code 由 ID 经 shortcode 编码得到。
type Link struct {
	ID        int64
	Code      string
	URL       string
	Visits    int64
	CreatedAt time.Time
}

// Phish 钓鱼网址黑名单中的一条（来自 PhishTank）。
type Phish struct {
	ID        int64
	URL       string
	DetailURL string
	UpdatedAt time.Time
}

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrInvalidURL   = errors.New("invalid url")
)

// PhishingError 目标地址在钓鱼黑名单中。
type PhishingError struct {
	URL       string
	DetailURL string
}

func (e *PhishingError) Error() string {
	return fmt.Sprintf("phishing url %s (details: %s)", e.URL, e.DetailURL)
}

// CodeFunc 根据刚分配好的 ID 生成短码。存储层必须保证 ID 已经落库且不会复用。
type CodeFunc func(id int64) (string, error)

// LinkStore 即 ID 源 + 短链存储。
//
// 说明：
// - ID 单调递增，分配出去的 ID 即使插入失败也不复用
// - 同一个 url 只存一份，重复插入返回已有记录
//
// 设计原因：
// - 内存版和 Postgres 版共用一套契约测试（repo/store_test.go），上层只依赖接口
type LinkStore interface {
	// Insert 保存 url；url 已存在时返回已有记录，created=false。
	Insert(ctx context.Context, url string, code CodeFunc) (link Link, created bool, err error)
	GetByCode(ctx context.Context, code string) (Link, error)
	// List 按 ID 倒序
	List(ctx context.Context, limit int) ([]Link, error)
	AddVisits(ctx context.Context, counts map[string]int64) error
	Ping(ctx context.Context) error
}

// PhishStore 保存 PhishTank 数据。
//
// 说明：
// - 主键是 phish_id，同一个 url 可能对应多个 phish_id；只要还有一条没过期，FindPhish 就能查到
// - UpsertPhishes 对已存在的 id 只刷新 updated_at，DeleteOldPhishes 按 updated_at 清理
type PhishStore interface {
	UpsertPhishes(ctx context.Context, phishes []Phish, now time.Time) (inserted int, err error)
	FindPhish(ctx context.Context, url string) (*Phish, error)
	DeleteOldPhishes(ctx context.Context, before time.Time) (int64, error)
	PhishURLs(ctx context.Context, fn func(url string)) error
}

type CacheStatus uint8

const (
	CacheMiss CacheStatus = iota
	CacheHit
	CacheNotFound // 负缓存命中
)

// LinkCache code -> url 的跳转缓存。实现方自己处理 Redis 故障，不向上返回错误。
type LinkCache interface {
	Get(ctx context.Context, code string) (string, CacheStatus)
	Set(ctx context.Context, code, url string)
	SetNotFound(ctx context.Context, code string)
	Delete(ctx context.Context, code string)
}

// PhishChecker 返回 nil 表示不在黑名单中。
type PhishChecker interface {
	Check(ctx context.Context, url string) (*Phish, error)
}
