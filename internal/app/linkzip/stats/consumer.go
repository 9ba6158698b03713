package stats

import (
	"context"
	"log/slog"
	"time"
)

// batcher 按数量或时间间隔把事件聚合成 code -> 次数，再一次性写入。
type batcher struct {
	w         VisitWriter
	batchSize int
	interval  time.Duration
	counts    map[string]int64
	pending   int
}

func newBatcher(w VisitWriter, batchSize int, interval time.Duration) *batcher {
	return &batcher{
		w:         w,
		batchSize: batchSize,
		interval:  interval,
		counts:    make(map[string]int64),
	}
}

func (b *batcher) add(e VisitEvent) {
	b.counts[e.Code]++
	b.pending++
	if b.pending >= b.batchSize {
		b.flush()
	}
}

func (b *batcher) flush() {
	if b.pending == 0 {
		return
	}
	// ctx 可能已经取消（关闭流程），用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.w.AddVisits(ctx, b.counts); err != nil {
		slog.Error("visits: flush failed", "err", err, "events", b.pending)
	} else {
		slog.Debug("visits: flushed", "events", b.pending, "codes", len(b.counts))
	}
	b.counts = make(map[string]int64)
	b.pending = 0
}

// Consumer 消费 ChannelCollector 的事件
type Consumer struct {
	collector *ChannelCollector
	b         *batcher
}

func NewConsumer(w VisitWriter, collector *ChannelCollector) *Consumer {
	return &Consumer{
		collector: collector,
		b:         newBatcher(w, 100, time.Second),
	}
}

// Run 阻塞，直到 ctx 结束或 collector 关闭；退出前写完剩余事件。
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.b.flush()
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				c.b.flush()
				return
			}
			c.b.add(event)
		case <-ticker.C:
			c.b.flush()
		}
	}
}

// drain 把 channel 里已经缓冲的事件取完，不等待新事件
func (c *Consumer) drain() {
	for {
		select {
		case event, ok := <-c.collector.Events():
			if !ok {
				return
			}
			c.b.add(event)
		default:
			return
		}
	}
}
