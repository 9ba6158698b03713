package httpmiddleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS 前端站点（SITE_DOMAIN）跨域调用 POST /url。origins 为空时放开所有来源。
func CORS(origins ...string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o = originOf(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cors.New(cfg)
}

// originOf https://example.com/path/ -> https://example.com
func originOf(s string) string {
	s = strings.TrimSpace(s)
	i := strings.Index(s, "://")
	if i < 0 {
		return ""
	}
	if j := strings.IndexByte(s[i+3:], '/'); j >= 0 {
		s = s[:i+3+j]
	}
	return s
}
