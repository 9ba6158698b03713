package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule 一条限流规则：window 内最多 Limit 次。
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// 滑动窗口：ZSET 里每个请求一个 member，score 为毫秒时间戳。
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

if count <= limit then
  return {1, 0}
end

redis.call("ZREM", key, member)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  local retryAfter = (tonumber(oldest[2]) + window) - now
  if retryAfter < 0 then retryAfter = 0 end
  return {0, retryAfter}
end
return {0, window}
`)

type Limiter struct {
	client *redis.Client
	prefix string
	seq    atomic.Uint64
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{
		client: client,
		prefix: "lz:rl:",
	}
}

// Allow 返回 allowed 和 retryAfter（只在超限时有意义）。
// subject 一般是客户端 IP。
func (l *Limiter) Allow(ctx context.Context, rule Rule, subject string) (bool, time.Duration, error) {
	key := l.prefix + rule.Name + ":" + subject
	// member 必须每次请求唯一，否则 ZADD 会覆盖；UnixNano 在虚拟化环境里可能重复，加序列号。
	member := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	res, err := slidingWindow.Run(ctx, l.client, []string{key},
		time.Now().UnixMilli(), rule.Window.Milliseconds(), rule.Limit, member).Result()
	if err != nil {
		return false, 0, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("unexpected redis eval result: %T %v", res, res)
	}

	allowed, _ := arr[0].(int64)
	var retryAfterMs int64
	switch v := arr[1].(type) {
	case int64:
		retryAfterMs = v
	case string:
		retryAfterMs, _ = strconv.ParseInt(v, 10, 64)
	}
	return allowed == 1, time.Duration(retryAfterMs) * time.Millisecond, nil
}
