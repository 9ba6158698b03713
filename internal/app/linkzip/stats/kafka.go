package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // 同一个短码进同一个分区
			Async:    true,
		},
	}
}

func (k *KafkaCollector) Collect(event VisitEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("visits: marshal event failed", "err", err)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.Code),
		Value: data,
	}); err != nil {
		slog.Error("visits: kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("visits: kafka writer close failed", "err", err)
	}
}

type KafkaConsumer struct {
	reader *kafka.Reader
	b      *batcher
}

func NewKafkaConsumer(brokers []string, topic string, w VisitWriter) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "linkzip-visits",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		b: newBatcher(w, 100, time.Second),
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	ticker := time.NewTicker(k.b.interval)
	defer ticker.Stop()

	msgCh := make(chan VisitEvent, k.b.batchSize)
	go func() {
		defer close(msgCh)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("visits: kafka read failed", "err", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			var event VisitEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("visits: unmarshal event failed", "err", err)
				continue
			}
			select {
			case msgCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			k.b.flush()
			return
		case event, ok := <-msgCh:
			if !ok {
				k.b.flush()
				return
			}
			k.b.add(event)
		case <-ticker.C:
			k.b.flush()
		}
	}
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("visits: kafka reader close failed", "err", err)
	}
}
