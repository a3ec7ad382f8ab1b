package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/observability"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"go.uber.org/zap"
)

type NotificationService struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	recipients    RecipientPolicy
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// PublishRequest is the input of a single fan-out. Reference and ActorID are
// optional; ExcludeActor drops the actor from their own notification.
type PublishRequest struct {
	Category     domain.Category
	Event        string
	Title        string
	Body         string
	Reference    *domain.Reference
	ActorID      *int64
	ExcludeActor bool
}

type FeedFilter struct {
	Category       *domain.Category
	IsRead         *bool
	IsAcknowledged *bool
	Query          *string
}

// PageRequest pages the feed. Zero Page and PageSize select the defaults.
// AsOfID is echoed back from the first page to keep later pages stable.
type PageRequest struct {
	Page     int
	PageSize int
	AsOfID   *int64
}

type Summary struct {
	Unacknowledged int64
	Unread         int64
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	recipients RecipientPolicy,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*NotificationService, error) {
	if notifications == nil || deliveries == nil {
		return nil, errors.New("notification and delivery repositories are required")
	}
	if recipients == nil {
		return nil, errors.New("recipient policy is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		deliveries:    deliveries,
		recipients:    recipients,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}, nil
}

// Publish validates the request, snapshots the recipient set and writes the
// notification together with one delivery row per recipient. Nothing is
// retried: a failure leaves no trace and is returned to the caller.
func (s *NotificationService) Publish(ctx context.Context, req PublishRequest) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	notification, err := prepareNotification(req, s.now().UTC())
	if err != nil {
		return 0, err
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	category := notification.Category.String()

	recipients, err := s.recipients.ResolveRecipients(ctx, Scope{
		ActorID:      notification.ActorID,
		ExcludeActor: req.ExcludeActor,
	})
	if err != nil {
		s.metrics.IncNotificationPublishFailed(category)
		logger.Error("failed to resolve notification recipients",
			zap.String("category", category),
			zap.String("event", notification.Event),
			zap.Error(err),
		)
		return 0, asStorageError("resolve recipients", err)
	}

	if err := s.notifications.CreateWithDeliveries(ctx, notification, recipients); err != nil {
		s.metrics.IncNotificationPublishFailed(category)
		logger.Error("failed to publish notification",
			zap.String("category", category),
			zap.String("event", notification.Event),
			zap.Int("recipients", len(recipients)),
			zap.Error(err),
		)
		return 0, asStorageError("publish notification", err)
	}

	s.metrics.IncNotificationPublished(category, len(recipients))
	logger.Info("notification published",
		zap.Int64("notificationId", notification.ID),
		zap.String("category", category),
		zap.String("event", notification.Event),
		zap.Int("recipients", len(recipients)),
	)
	return notification.ID, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: notification id must be positive", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, id)
}

// MarkRead reports changed=false when the row was already read.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID int64) (bool, error) {
	if err := validateDeliveryKey(notificationID, userID); err != nil {
		return false, err
	}

	changed, err := s.deliveries.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return false, err
	}
	s.metrics.IncDeliveryTransition("read", changed)
	return changed, nil
}

// Acknowledge also marks the row read. Concurrent calls for the same row
// yield exactly one changed=true.
func (s *NotificationService) Acknowledge(ctx context.Context, notificationID, userID int64) (bool, error) {
	if err := validateDeliveryKey(notificationID, userID); err != nil {
		return false, err
	}

	changed, err := s.deliveries.Acknowledge(ctx, notificationID, userID)
	if err != nil {
		return false, err
	}
	s.metrics.IncDeliveryTransition("acknowledge", changed)
	if changed {
		observability.WithContextLogger(s.logger, ctx).Debug("notification acknowledged",
			zap.Int64("notificationId", notificationID),
			zap.Int64("userId", userID),
		)
	}
	return changed, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}

	changed, err := s.deliveries.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.IncDeliveryTransition("read_all", changed > 0)
	return changed, nil
}

func (s *NotificationService) AcknowledgeAll(ctx context.Context, userID int64) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}

	changed, err := s.deliveries.AcknowledgeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.IncDeliveryTransition("acknowledge_all", changed > 0)
	return changed, nil
}

func (s *NotificationService) GetUnacknowledgedCount(ctx context.Context, userID int64) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}
	return s.deliveries.CountUnacknowledged(ctx, userID)
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID int64) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}
	return s.deliveries.CountUnread(ctx, userID)
}

// GetSummary returns both badge counters for the polling client.
func (s *NotificationService) GetSummary(ctx context.Context, userID int64) (Summary, error) {
	unacked, err := s.GetUnacknowledgedCount(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	unread, err := s.GetUnreadCount(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Unacknowledged: unacked, Unread: unread}, nil
}

func (s *NotificationService) ListFeed(
	ctx context.Context,
	userID int64,
	filter FeedFilter,
	page PageRequest,
) (*repository.FeedPage, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	params, err := feedParams(filter, page)
	if err != nil {
		return nil, err
	}
	return s.notifications.ListFeed(ctx, userID, params)
}

func (s *NotificationService) ListRecent(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}
	if limit == 0 {
		limit = repository.DefaultRecentLimit
	}
	limit = min(limit, repository.MaxRecentLimit)

	return s.notifications.ListRecent(ctx, userID, limit)
}

func prepareNotification(req PublishRequest, now time.Time) (*domain.Notification, error) {
	n := &domain.Notification{
		Category:  req.Category,
		Event:     strings.TrimSpace(req.Event),
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		ActorID:   req.ActorID,
		CreatedAt: now,
	}
	if req.Reference != nil {
		n.Reference = &domain.Reference{
			EntityType: domain.NormalizeEntityType(req.Reference.EntityType),
			EntityID:   req.Reference.EntityID,
		}
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func feedParams(filter FeedFilter, page PageRequest) (repository.FeedParams, error) {
	params := repository.FeedParams{
		Category:       filter.Category,
		IsRead:         filter.IsRead,
		IsAcknowledged: filter.IsAcknowledged,
		Query:          normalizeOptionalString(filter.Query),
		AsOfID:         page.AsOfID,
		Page:           page.Page,
		PageSize:       page.PageSize,
	}

	if params.Category != nil && !params.Category.IsValid() {
		return repository.FeedParams{}, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, *params.Category)
	}
	if params.Page == 0 {
		params.Page = 1
	}
	if params.Page < 1 {
		return repository.FeedParams{}, fmt.Errorf("%w: page must be at least 1", domain.ErrValidation)
	}
	if params.PageSize == 0 {
		params.PageSize = repository.DefaultPageSize
	}
	if params.PageSize < 1 || params.PageSize > repository.MaxPageSize {
		return repository.FeedParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, repository.MaxPageSize)
	}
	if params.AsOfID != nil && *params.AsOfID < 0 {
		return repository.FeedParams{}, fmt.Errorf("%w: asOf must not be negative", domain.ErrValidation)
	}
	return params, nil
}

func validateDeliveryKey(notificationID, userID int64) error {
	if notificationID <= 0 {
		return fmt.Errorf("%w: notification id must be positive", domain.ErrValidation)
	}
	return validateUserID(userID)
}

func validateUserID(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id must be positive", domain.ErrValidation)
	}
	return nil
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// asStorageError keeps domain errors as they are and classifies anything else
// as a storage failure.
func asStorageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStorage),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
	}
}
