package httpmiddleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"linkzip.local/internal/platform/metrics"
	"linkzip.local/internal/platform/ratelimit"
)

// 只有来自这些网段（同机反代、内网、docker bridge）的请求才信任转发头，
// 否则客户端可以伪造 X-Forwarded-For 绕过按 IP 的限流。
var trustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
}

// ConfigureClientIP 让 c.ClientIP() 返回真实客户端 IP。
// Cloudflare -> Caddy -> app 时优先用 CF-Connecting-IP。
func ConfigureClientIP(engine *gin.Engine) error {
	engine.RemoteIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}
	return engine.SetTrustedProxies(trustedProxies)
}

// RateLimit 按客户端 IP 限流。limiter 为 nil 时不限流；Redis 出错时放行。
func RateLimit(limiter *ratelimit.Limiter, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || rule.Limit <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 50*time.Millisecond)
		allowed, retryAfter, err := limiter.Allow(ctx, rule, c.ClientIP())
		cancel()
		if err != nil {
			slog.Error("rate limit check failed", "err", err, "rule", rule.Name)
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitExceeded.WithLabelValues(rule.Name).Inc()
			if retryAfter > 0 {
				secs := int64((retryAfter + time.Second - 1) / time.Second)
				c.Header("Retry-After", strconv.FormatInt(secs, 10))
			}
			AbortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded: "+strconv.Itoa(rule.Limit)+" per "+rule.Window.String())
			return
		}
		c.Next()
	}
}
