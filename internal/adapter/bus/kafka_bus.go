// Package bus adapts the message-bus ports to Kafka. Messages are keyed by
// aggregate id and hashed to a partition, so Kafka's per-partition ordering
// gives per-aggregate ordering.
package bus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/order-inventory/internal/port"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg port.Message) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber fetches without committing; offsets advance only through
// CommitMessage, so an uncommitted message is redelivered after a restart or
// rebalance instead of being lost.
type KafkaSubscriber struct {
	reader *kafka.Reader
	topic  string
}

func NewKafkaSubscriber(brokers []string, topic, groupID string) *KafkaSubscriber {
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		topic: topic,
	}
}

func (s *KafkaSubscriber) FetchMessage(ctx context.Context) (port.Message, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return port.Message{}, err
	}
	return port.Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, nil
}

func (s *KafkaSubscriber) CommitMessage(ctx context.Context, msg port.Message) error {
	return s.reader.CommitMessages(ctx, kafka.Message{
		Topic:     s.topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}
