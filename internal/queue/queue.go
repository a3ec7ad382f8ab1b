package queue

import (
	"context"
	"fmt"
)

// Kind names the boundary operation a message asks for.
type Kind string

const (
	KindPublish  Kind = "publish"
	KindRevision Kind = "revision"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindPublish, KindRevision:
		return true
	default:
		return false
	}
}

// Publisher publishes intake messages to the queue matching their kind.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer consumes intake messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedKinds = []Kind{
	KindPublish,
	KindRevision,
}

var queueNames = map[Kind]string{
	KindPublish:  "notifications.publish",
	KindRevision: "revisions.record",
}

// QueueName returns the work queue for a kind, e.g. notifications.publish.
// Unknown kinds map to the empty string.
func QueueName(kind Kind) string {
	return queueNames[kind]
}

// DLQName returns the dead-letter queue for a kind, e.g. dlq.revisions.record.
func DLQName(kind Kind) string {
	return fmt.Sprintf("dlq.%s", QueueName(kind))
}

// WorkQueueNames returns all intake work queues.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, QueueName(kind))
	}
	return queues
}

func DLQNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, DLQName(kind))
	}
	return queues
}
