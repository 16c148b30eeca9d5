// Package kafka builds the sarama clients the event bus adapter runs on.
package kafka

import (
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/meridianpay/gateway/internal/config"
)

// newSaramaConfig is shared by producers and consumers.
//
// The producer is idempotent and waits for acks from the full ISR, so a
// broker-acknowledged publish is durable. The hash partitioner keys on the
// message key, which carries the event's partition key; that is what keeps
// one payment's events ordered.
func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	cfg.Consumer.Return.Errors = true

	return cfg
}

// NewClient connects to the brokers. Producers and consumer groups are built
// from this one client, and the health endpoint checks it.
func NewClient(cfg config.KafkaConfig, logger *slog.Logger) (sarama.Client, error) {
	client, err := sarama.NewClient(cfg.BrokerList(), newSaramaConfig())
	if err != nil {
		return nil, err
	}
	logger.Info("connected to kafka", "brokers", cfg.Brokers)
	return client, nil
}

func NewSyncProducer(client sarama.Client) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducerFromClient(client)
}

func NewConsumerGroup(client sarama.Client, groupID string) (sarama.ConsumerGroup, error) {
	return sarama.NewConsumerGroupFromClient(groupID, client)
}

// Healthy reports whether the client still sees at least one broker.
func Healthy(client sarama.Client) bool {
	return len(client.Brokers()) > 0
}
