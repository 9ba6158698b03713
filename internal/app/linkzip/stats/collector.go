package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"linkzip.local/internal/platform/metrics"
)

// VisitEvent 一次短链跳转
type VisitEvent struct {
	Code      string    `json:"code"`
	VisitedAt time.Time `json:"visited_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// Collector 收集访问事件。Collect 不能阻塞跳转请求。
type Collector interface {
	Collect(event VisitEvent)
	Close()
}

// VisitWriter 把访问次数写回存储，key 是短码。
type VisitWriter interface {
	AddVisits(ctx context.Context, counts map[string]int64) error
}

// DirectCollector 同步写计数，适合内存存储和测试：跳转返回前计数已经生效。
type DirectCollector struct {
	w       VisitWriter
	timeout time.Duration
}

func NewDirectCollector(w VisitWriter) *DirectCollector {
	return &DirectCollector{w: w, timeout: time.Second}
}

func (d *DirectCollector) Collect(event VisitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.w.AddVisits(ctx, map[string]int64{event.Code: 1}); err != nil {
		slog.Error("visits: direct write failed", "err", err, "code", event.Code)
	}
}

func (d *DirectCollector) Close() {}

// ChannelCollector 基于 channel 的收集器，满了直接丢弃。
type ChannelCollector struct {
	ch     chan VisitEvent
	mu     sync.RWMutex
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan VisitEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event VisitEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		metrics.VisitEventsDropped.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan VisitEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
