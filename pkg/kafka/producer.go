package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer Writer
	topic  string
	logger ectologger.Logger
}

func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

func NewProducerWithWriter(writer Writer, topic string, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, topic: topic, logger: logger}
}

func compression(name string) compress.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return 0
	}
}

// Publish writes one keyed message. Trace ids travel as headers.
func (p *Producer) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Publish",
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.key", key),
	)
	defer span.End()

	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		tracing.Fail(span, err)
		p.logger.WithContext(ctx).WithError(err).WithField("topic", p.topic).Error("Failed to publish message")
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": p.topic,
		"key":   key,
	}).Debug("Published message")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
