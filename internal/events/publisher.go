package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/metrics"
)

// Publisher sends schema-valid events to the payment topic. The producer's
// hash partitioner keys on the payment identifier, so one payment's events
// land on one partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	registry *SchemaRegistry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewPublisher wraps a sync producer for the given topic.
func NewPublisher(producer sarama.SyncProducer, topic string, registry *SchemaRegistry, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// Publish validates and sends one event, blocking until the broker acks or
// the producer's retries are exhausted. A validation failure is permanent;
// a send failure is worth buffering in the outbox.
func (p *Publisher) Publish(ctx context.Context, evt domain.Event) error {
	body, err := p.registry.Validate(evt)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.PartitionKey),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(evt.EventType)},
			{Key: []byte("correlation_id"), Value: []byte(evt.CorrelationID)},
			{Key: []byte("trace_id"), Value: []byte(evt.TraceID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publishing %s event %s: %w", evt.EventType, evt.EventID, err)
	}

	p.metrics.EventsProduced.WithLabelValues(string(evt.EventType)).Inc()
	p.logger.Debug("event published",
		"event_type", string(evt.EventType),
		"event_id", evt.EventID,
		"partition_key", evt.PartitionKey,
		"partition", partition,
		"offset", offset)
	return nil
}

// Close flushes and shuts down the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
