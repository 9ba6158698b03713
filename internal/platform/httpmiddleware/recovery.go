package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

func stack(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])

	var b strings.Builder
	b.WriteString(message + "\nTraceback:")
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "\n\t%s:%d", f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Recovery 记录 panic 和调用栈，响应 500。已经开始写响应时只能中止。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"request_id", c.GetHeader(RequestIDHeader),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", err,
					"stack", stack(fmt.Sprint(err)),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				AbortWithError(c, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		c.Next()
	}
}
