package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notifyhub/internal/domain/notify"

	"github.com/segmentio/kafka-go"
)

var _ notify.ResultSink = (*Kafka)(nil)

// Kafka publishes dispatch results to a topic, keyed by route id so results
// for one route stay ordered within a partition.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a Kafka result sink.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// Name identifies the sink in logs.
func (k *Kafka) Name() string { return "kafka" }

// Publish writes one result message.
func (k *Kafka) Publish(ctx context.Context, result *notify.DispatchResult) error {
	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(result.RouteID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "dispatch_id", Value: []byte(result.ID)},
			{Key: "overall_status", Value: []byte(result.OverallStatus)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing to kafka: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
