package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher is the client inventory services embed to submit publish
// and revision requests asynchronously.
type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	queue, publishing, err := newPublishing(msg, time.Now().UTC())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// newPublishing validates msg and builds the persistent AMQP publishing for
// the queue that serves its kind.
func newPublishing(msg Message, now time.Time) (string, amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("invalid intake message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("failed to marshal intake message: %w", err)
	}

	return QueueName(msg.Kind), amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Type:          msg.Kind.String(),
		Body:          payload,
	}, nil
}
