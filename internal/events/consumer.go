package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/metrics"
	"github.com/meridianpay/gateway/internal/resilience"
)

// HandlerFunc processes one decoded event. Returning an error triggers
// bounded reprocessing before the event moves to the dead letter topic.
type HandlerFunc func(ctx context.Context, evt domain.Event) error

// Deduplicator remembers processed event ids for at least the replay window.
// Partition exclusivity within the consumer group makes the check-then-mark
// sequence safe without a transaction.
type Deduplicator interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Consumer pulls payment events from the bus and dispatches them to
// registered handlers with dedup and dead-lettering.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler *groupHandler
	logger  *slog.Logger
}

// NewConsumer builds a consumer over an established group session factory.
func NewConsumer(group sarama.ConsumerGroup, topics []string, dedup Deduplicator, dlq sarama.SyncProducer, dlqTopic string, logger *slog.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{
		group:  group,
		topics: topics,
		logger: logger,
		handler: &groupHandler{
			handlers: make(map[domain.EventType]HandlerFunc),
			dedup:    dedup,
			dlq:      dlq,
			dlqTopic: dlqTopic,
			logger:   logger,
			metrics:  m,
			retry: resilience.RetryPolicy{
				MaxAttempts: 3,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    2 * time.Second,
			},
		},
	}
}

// Register binds a handler to an event type. Events without a handler are
// acked and skipped.
func (c *Consumer) Register(eventType domain.EventType, fn HandlerFunc) {
	c.handler.handlers[eventType] = fn
}

// Run consumes until the context is cancelled. Rebalances return from
// Consume and the loop rejoins.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, c.topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("consumer group session failed", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handlers map[domain.EventType]HandlerFunc
	dedup    Deduplicator
	dlq      sarama.SyncProducer
	dlqTopic string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	retry    resilience.RetryPolicy
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(session.Context(), msg); err != nil {
				// Neither processed nor dead-lettered. Leave the session
				// with the offset uncommitted so the message redelivers.
				return err
			}
			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// process handles one raw message. Poison messages and exhausted retries go
// to the dead letter topic instead of wedging the partition; the returned
// error is non-nil only when even that failed.
func (h *groupHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt domain.Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("undecodable event, dead-lettering",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		h.metrics.EventsConsumed.WithLabelValues("unknown", "poison").Inc()
		return h.deadLetter(msg, err)
	}

	handler, ok := h.handlers[evt.EventType]
	if !ok {
		h.metrics.EventsConsumed.WithLabelValues(string(evt.EventType), "skipped").Inc()
		return nil
	}

	seen, err := h.dedup.Seen(ctx, evt.EventID)
	if err != nil {
		h.logger.Warn("dedup lookup failed, processing anyway",
			"event_id", evt.EventID, "error", err)
	}
	if seen {
		h.metrics.EventsConsumed.WithLabelValues(string(evt.EventType), "duplicate").Inc()
		h.logger.Debug("duplicate event acked without reprocessing", "event_id", evt.EventID)
		return nil
	}

	_, err = resilience.Retry(ctx, h.retry, func(error) bool { return true }, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, handler(ctx, evt)
	})
	if err != nil {
		h.logger.Error("event processing exhausted retries, dead-lettering",
			"event_type", string(evt.EventType), "event_id", evt.EventID, "error", err)
		h.metrics.EventsConsumed.WithLabelValues(string(evt.EventType), "dead_lettered").Inc()
		return h.deadLetter(msg, err)
	}

	if err := h.dedup.MarkProcessed(ctx, evt.EventID); err != nil {
		h.logger.Warn("failed to record processed event id",
			"event_id", evt.EventID, "error", err)
	}
	h.metrics.EventsConsumed.WithLabelValues(string(evt.EventType), "ok").Inc()
	return nil
}

// deadLetter forwards the original message with failure context headers.
func (h *groupHandler) deadLetter(msg *sarama.ConsumerMessage, cause error) error {
	headers := make([]sarama.RecordHeader, 0, len(msg.Headers)+3)
	for _, hd := range msg.Headers {
		headers = append(headers, *hd)
	}
	headers = append(headers,
		sarama.RecordHeader{Key: []byte("dlq_error"), Value: []byte(cause.Error())},
		sarama.RecordHeader{Key: []byte("dlq_source_topic"), Value: []byte(msg.Topic)},
		sarama.RecordHeader{Key: []byte("dlq_failed_at"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)

	_, _, err := h.dlq.SendMessage(&sarama.ProducerMessage{
		Topic:   h.dlqTopic,
		Key:     sarama.ByteEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: headers,
	})
	if err != nil {
		h.logger.Error("dead letter publish failed",
			"topic", msg.Topic, "offset", msg.Offset, "error", err)
		return fmt.Errorf("dead letter publish: %w", err)
	}
	return nil
}
