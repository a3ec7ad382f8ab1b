package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/observability"
	"github.com/kursadbilgin/inventory-notifier/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

type notificationPublisher interface {
	Publish(ctx context.Context, req PublishRequest) (int64, error)
}

type changeRecorder interface {
	RecordChanges(ctx context.Context, entityType string, entityID int64, actorID *int64, changes []FieldChange) (int, error)
}

// IntakeWorker applies publish and revision requests submitted over the
// broker. Each message is applied at most once: failures are dead-lettered
// by the consumer, never retried here.
type IntakeWorker struct {
	notifications notificationPublisher
	revisions     changeRecorder
	consumer      queue.Consumer
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
}

func NewIntakeWorker(
	notifications notificationPublisher,
	revisions changeRecorder,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*IntakeWorker, error) {
	if notifications == nil || revisions == nil {
		return nil, fmt.Errorf("notification and revision services are required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntakeWorker{
		notifications: notifications,
		revisions:     revisions,
		consumer:      consumer,
		logger:        logger,
		metrics:       metrics,
		concurrency:   concurrency,
	}, nil
}

// Start consumes the intake queues until context cancellation. Consumers are
// spread round-robin over the queues, with at least one per queue.
func (w *IntakeWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	consumers := max(w.concurrency, len(queueNames))

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < consumers; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("intake consumer started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processMessage)
			if err != nil {
				w.logger.Error("intake consumer stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("intake consumer stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (w *IntakeWorker) processMessage(ctx context.Context, msg queue.Message) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(w.logger, ctx).With(
		zap.String("messageId", msg.MessageID),
		zap.String("kind", msg.Kind.String()),
	)

	var err error
	switch msg.Kind {
	case queue.KindPublish:
		err = w.applyPublish(ctx, logger, msg.Publish)
	case queue.KindRevision:
		err = w.applyRevision(ctx, logger, msg.Revision)
	default:
		err = fmt.Errorf("%w: unsupported message kind %q", domain.ErrValidation, msg.Kind)
	}

	if err != nil {
		w.metrics.IncIntakeMessage(msg.Kind.String(), "rejected")
		logger.Error("intake message failed", zap.Error(err))
		return err
	}

	w.metrics.IncIntakeMessage(msg.Kind.String(), "applied")
	return nil
}

func (w *IntakeWorker) applyPublish(ctx context.Context, logger *zap.Logger, p *queue.PublishPayload) error {
	if p == nil {
		return fmt.Errorf("%w: publish payload is required", domain.ErrValidation)
	}

	category, err := domain.ParseCategoryFromString(p.Category)
	if err != nil {
		return err
	}

	req := PublishRequest{
		Category:     category,
		Event:        p.Event,
		Title:        p.Title,
		Body:         p.Body,
		ActorID:      p.ActorID,
		ExcludeActor: p.ExcludeActor,
	}
	if p.Reference != nil {
		req.Reference = &domain.Reference{
			EntityType: p.Reference.EntityType,
			EntityID:   p.Reference.EntityID,
		}
	}

	id, err := w.notifications.Publish(ctx, req)
	if err != nil {
		return err
	}

	logger.Debug("intake publish applied", zap.Int64("notificationId", id))
	return nil
}

func (w *IntakeWorker) applyRevision(ctx context.Context, logger *zap.Logger, p *queue.RevisionPayload) error {
	if p == nil {
		return fmt.Errorf("%w: revision payload is required", domain.ErrValidation)
	}

	changes := make([]FieldChange, 0, len(p.Changes))
	for _, c := range p.Changes {
		changes = append(changes, FieldChange{
			Field:    c.Field,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
		})
	}

	recorded, err := w.revisions.RecordChanges(ctx, p.EntityType, p.EntityID, p.ActorID, changes)
	if err != nil {
		return err
	}

	logger.Debug("intake revision applied",
		zap.String("entityType", p.EntityType),
		zap.Int64("entityId", p.EntityID),
		zap.Int("recorded", recorded),
	)
	return nil
}
