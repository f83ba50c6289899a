package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter creates a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// Config controls polling.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Publisher drains unpublished events to Kafka on a fixed interval.
type Publisher struct {
	repo   Repository
	writer MessageWriter
	cfg    Config

	published metric.Int64Counter
	failures  metric.Int64Counter
}

// NewPublisher creates a Publisher.
func NewPublisher(repo Repository, writer MessageWriter, cfg Config, mp metric.MeterProvider) (*Publisher, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	meter := mp.Meter("shopfront/outbox")
	published, err := meter.Int64Counter("outbox.published")
	if err != nil {
		return nil, errors.Wrap(err, "create published counter")
	}
	failures, err := meter.Int64Counter("outbox.failures")
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}

	return &Publisher{
		repo:      repo,
		writer:    writer,
		cfg:       cfg,
		published: published,
		failures:  failures,
	}, nil
}

// Run polls until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				zctx.From(ctx).Warn("Outbox poll failed", zap.Error(err))
			}
		}
	}
}

// PublishPending publishes one batch and returns how many events were
// published. An event that fails to publish or to be marked stays pending
// and is retried on the next call.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	lg := zctx.From(ctx)

	events, err := p.repo.Unpublished(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "fetch unpublished")
	}

	var n int
	for _, e := range events {
		msg := kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.failures.Add(ctx, 1)
			lg.Warn("Publish event", zap.Stringer("event_id", e.ID), zap.Error(err))
			continue
		}
		if err := p.repo.MarkPublished(ctx, e.ID); err != nil {
			p.failures.Add(ctx, 1)
			lg.Warn("Mark event published", zap.Stringer("event_id", e.ID), zap.Error(err))
			continue
		}
		p.published.Add(ctx, 1)
		n++
	}
	return n, nil
}
