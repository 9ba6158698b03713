package linkzip

import (
	"net/url"
	"strings"
)

const MaxURLLength = 2048

// NormalizeURL 校验并规范化用户提交的 URL：
//   - 非空，长度不超过 MaxURLLength
//   - scheme 只能是 http/https
//   - host 不能为空
//
// scheme 和 host 转小写，空 path 补成 "/"，所以 https://Example.com 和 https://example.com/ 是同一条。
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxURLLength {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if strings.TrimSpace(u.Hostname()) == "" {
		return "", ErrInvalidURL
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	return u.String(), nil
}
