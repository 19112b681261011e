package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/swarm/pkg/blackboard"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpPublisher is the part of *amqp.Channel the sink uses.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes broadcasts as persistent JSON messages to a durable
// RabbitMQ queue.
type AMQPSink struct {
	conn  *amqp.Connection
	ch    amqpPublisher
	queue string
}

// NewAMQPSink dials url and declares queue.
func NewAMQPSink(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &AMQPSink{conn: conn, ch: ch, queue: queue}, nil
}

func (a *AMQPSink) Name() string { return "amqp" }

func (a *AMQPSink) Send(ctx context.Context, ev *blackboard.BroadcastEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: ev.CorrelationID,
		Headers: amqp.Table{
			"sender":  ev.Sender,
			"urgency": string(ev.Urgency),
		},
		Body: payload,
	}
	if err := a.ch.PublishWithContext(ctx, "", a.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", a.queue, err)
	}
	return nil
}

func (a *AMQPSink) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
