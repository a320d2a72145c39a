package results

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"examdesk/pkg/platform/sentinel"
)

// KafkaNotifier publishes publication events to Kafka. Produces are
// synchronous: the pipeline needs the delivery ack before it may advance the
// checkpoint past a batch.
type KafkaNotifier struct {
	client *kgo.Client
}

// NewKafkaNotifier connects a producer to the given brokers. Returns nil if
// no brokers are configured (the memory notifier is used instead).
func NewKafkaNotifier(brokers []string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaNotifier{client: client}, nil
}

func (n *KafkaNotifier) Publish(ctx context.Context, topic, key string, payload []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, sentinel.ErrUnavailable)
	}
	return nil
}

// Close flushes and releases the producer.
func (n *KafkaNotifier) Close() {
	n.client.Close()
}
