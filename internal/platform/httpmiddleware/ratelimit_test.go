package httpmiddleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"linkzip.local/internal/platform/ratelimit"
)

func TestRateLimitWithRedis(t *testing.T) {
	addr := os.Getenv("REDIS_SERVER")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available at %s: %v", addr, err)
	}

	rule := ratelimit.Rule{Name: fmt.Sprintf("mw-%d", time.Now().UnixNano()), Limit: 2, Window: time.Minute}
	engine := gin.New()
	engine.POST("/url", RateLimit(ratelimit.NewLimiter(client), rule), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := range 2 {
		w := serve(engine, httptest.NewRequest(http.MethodPost, "/url", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}
	w := serve(engine, httptest.NewRequest(http.MethodPost, "/url", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit: got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	engine := gin.New()
	engine.POST("/url", RateLimit(ratelimit.NewLimiter(client), ratelimit.Rule{Name: "create", Limit: 1, Window: time.Minute}),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	for range 3 {
		if w := serve(engine, httptest.NewRequest(http.MethodPost, "/url", nil)); w.Code != http.StatusOK {
			t.Fatalf("got %d, want 200 when redis is down", w.Code)
		}
	}
}
