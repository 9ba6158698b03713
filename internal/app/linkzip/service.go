package linkzip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"linkzip.local/internal/app/linkzip/shortcode"
	"linkzip.local/internal/app/linkzip/stats"
	"linkzip.local/internal/platform/metrics"
)

// Options Service 的可选依赖，nil 表示不启用。
type Options struct {
	// MinLength 短码最小长度，<=0 时用 shortcode.DefaultMinLength
	MinLength int
	// Domain 拼 full_link 用的前缀（API_DOMAIN）
	Domain string
	Cache  LinkCache
	Phish  PhishChecker
	Visits stats.Collector
}

// Service 短链的用例层：创建、跳转、详情、列表。
//
// 说明：
// - 写路径：NormalizeURL -> 钓鱼检查 -> store.Insert（由存储分配 ID，再用 codec 生成短码）-> 写缓存
// - 读路径：codec 解码做格式校验 -> 缓存（含负缓存）-> 存储 -> 钓鱼检查 -> 记访问
//
// 设计原因：
// - 短码只能在 ID 落库之后生成，所以编码函数以 CodeFunc 的形式交给存储层，在同一个事务里调用
// - 缓存、钓鱼检查、访问统计都是可选依赖，测试和 DB_TYPE=inmemory 时可以全部不配
type Service struct {
	codec  *shortcode.Codec
	store  LinkStore
	minLen int
	domain string
	cache  LinkCache
	phish  PhishChecker
	visits stats.Collector
}

func NewService(codec *shortcode.Codec, store LinkStore, opts Options) *Service {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = shortcode.DefaultMinLength
	}
	return &Service{
		codec:  codec,
		store:  store,
		minLen: minLen,
		domain: strings.TrimRight(opts.Domain, "/"),
		cache:  opts.Cache,
		phish:  opts.Phish,
		visits: opts.Visits,
	}
}

// Visit 跳转请求的客户端信息，只用于访问统计。
type Visit struct {
	IP        string
	UserAgent string
	Referer   string
}

// Resolution 跳转结果。PhishDetailURL 不为空时目标在钓鱼黑名单里，应该跳到详情页而不是 URL。
type Resolution struct {
	URL            string
	PhishDetailURL string
}

// Shorten 为 url 分配短码。同一个 url 重复提交返回同一条记录。
func (s *Service) Shorten(ctx context.Context, rawURL string) (Link, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return Link{}, err
	}

	if s.phish != nil {
		p, err := s.phish.Check(ctx, u)
		if err != nil {
			return Link{}, fmt.Errorf("phishing check: %w", err)
		}
		if p != nil {
			metrics.PhishingBlocks.Inc()
			return Link{}, &PhishingError{URL: u, DetailURL: p.DetailURL}
		}
	}

	link, created, err := s.store.Insert(ctx, u, s.encode)
	if err != nil {
		return Link{}, err
	}
	if created {
		metrics.URLsCreated.Inc()
		slog.Info("link created", "code", link.Code, "id", link.ID)
	}
	// 覆盖可能存在的负缓存
	if s.cache != nil {
		s.cache.Set(ctx, link.Code, link.URL)
	}
	return link, nil
}

func (s *Service) encode(id int64) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("%w: negative id %d", shortcode.ErrIDOutOfRange, id)
	}
	return s.codec.EncodeURL(uint64(id), s.minLen)
}

// Resolve 查找短码对应的 URL 并记一次访问。
// 解不开的短码不会碰存储，直接 ErrLinkNotFound。
func (s *Service) Resolve(ctx context.Context, code string, v Visit) (Resolution, error) {
	if _, err := s.codec.DecodeURL(code); err != nil {
		return Resolution{}, ErrLinkNotFound
	}

	target, err := s.lookup(ctx, code)
	if err != nil {
		return Resolution{}, err
	}

	s.recordVisit(code, v)

	res := Resolution{URL: target}
	if s.phish != nil {
		p, err := s.phish.Check(ctx, target)
		if err != nil {
			// 黑名单不可用时照常跳转
			slog.Warn("phishing check failed", "err", err, "code", code)
		} else if p != nil {
			metrics.PhishingBlocks.Inc()
			res.PhishDetailURL = p.DetailURL
			return res, nil
		}
	}
	metrics.Redirects.Inc()
	return res, nil
}

func (s *Service) lookup(ctx context.Context, code string) (string, error) {
	if s.cache != nil {
		switch u, st := s.cache.Get(ctx, code); st {
		case CacheHit:
			return u, nil
		case CacheNotFound:
			return "", ErrLinkNotFound
		}
	}

	link, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, ErrLinkNotFound) {
		if s.cache != nil {
			s.cache.SetNotFound(ctx, code)
		}
		return "", ErrLinkNotFound
	}
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		s.cache.Set(ctx, code, link.URL)
	}
	return link.URL, nil
}

func (s *Service) recordVisit(code string, v Visit) {
	if s.visits == nil {
		return
	}
	s.visits.Collect(stats.VisitEvent{
		Code:      code,
		VisitedAt: time.Now().UTC(),
		IP:        v.IP,
		UserAgent: v.UserAgent,
		Referer:   v.Referer,
	})
}

// Info 返回短链详情（含访问次数），不计访问。
func (s *Service) Info(ctx context.Context, code string) (Link, error) {
	if _, err := s.codec.DecodeURL(code); err != nil {
		return Link{}, ErrLinkNotFound
	}
	return s.store.GetByCode(ctx, code)
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (s *Service) List(ctx context.Context, limit int) ([]Link, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.List(ctx, limit)
}

// FullLink 对外展示的完整短链
func (s *Service) FullLink(code string) string {
	return s.domain + "/" + code
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
