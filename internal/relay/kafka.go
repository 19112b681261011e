package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes broadcasts as JSON records keyed by correlation ID.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		topic: topic,
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Send(ctx context.Context, ev *blackboard.BroadcastEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.CorrelationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "sender", Value: []byte(ev.Sender)},
			{Key: "urgency", Value: []byte(ev.Urgency)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
