package httpmiddleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"linkzip.local/internal/platform/metrics"
)

// route 用路由模板做 label，没匹配到路由的统一归到 UNMATCHED
func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "UNMATCHED"
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()

		c.Next()

		r := route(c)
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, r, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, r).Observe(time.Since(start).Seconds())
	}
}

// TraceName otelhttp 建的 span 名字只有方法，这里补上路由模板
func TraceName() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		span.SetName(c.Request.Method + " " + route(c))
		c.Next()
	}
}
