package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// KafkaConfig holds the Kafka producer settings
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaProducer creates a synchronous producer that waits for all replicas
func NewKafkaProducer(cfg KafkaConfig, logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return producer, nil
}

// KafkaPublisher publishes status changes keyed by payment id so that all
// events of one payment land on the same partition in commit order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher wraps a producer
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// PublishStatusChanged implements ports.EventPublisher
func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event domain.PaymentStatusChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.PaymentID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: event.OccurredAt,
	}

	// Inject trace context into Kafka message headers
	carrier := make(saramaHeaderCarrier, 0, 4)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	carrier.Set("event-type", EventTypeStatusChanged)
	msg.Headers = []sarama.RecordHeader(carrier)

	// SendMessage has no context; give up waiting once ctx is done
	type result struct {
		partition int32
		offset    int64
		err       error
	}
	done := make(chan result, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- result{partition, offset, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		observability.RecordEventPublished("kafka", "failed")
		return fmt.Errorf("failed to send message: %w", ctx.Err())
	}
	if res.err != nil {
		observability.RecordEventPublished("kafka", "failed")
		return fmt.Errorf("failed to send message: %w", res.err)
	}
	observability.RecordEventPublished("kafka", "success")

	traceID := ""
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	p.logger.Debug("Payment event published",
		zap.String("trace_id", traceID),
		zap.String("topic", p.topic),
		zap.String("payment_id", event.PaymentID),
		zap.String("status", event.Status),
		zap.Int32("partition", res.partition),
		zap.Int64("offset", res.offset))

	return nil
}

// Close implements ports.EventPublisher
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// saramaHeaderCarrier implements propagation.TextMapCarrier for Kafka headers
type saramaHeaderCarrier []sarama.RecordHeader

func (c saramaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *saramaHeaderCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c saramaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
