package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"l2-order-book/internal/orderbook"
	"l2-order-book/internal/platform/metrics"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends top-of-book JSON to a Kafka topic, keyed by instrument so
// one instrument's quotes stay ordered within a partition.
type Publisher struct {
	instrument string
	writer     messageWriter
}

func New(brokers []string, topic, instrument string) *Publisher {
	return &Publisher{
		instrument: instrument,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Name() string { return "quote-publisher" }

func (p *Publisher) Observe(ctx context.Context, view orderbook.BookView) error {
	value, err := json.Marshal(view.Top(p.instrument))
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.instrument),
		Value: value,
	}); err != nil {
		return err
	}
	metrics.QuotesPublishedTotal.Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
