package repository

import (
	"context"
	"strings"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"gorm.io/gorm"
)

const (
	deliveryInsertBatchSize = 500

	DefaultPageSize    = 50
	MaxPageSize        = 100
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
)

// FeedParams filters and pages a recipient's feed. AsOfID pins the snapshot:
// only notifications with id <= AsOfID are visible, so pages fetched later
// are not shifted by notifications published in between.
type FeedParams struct {
	Category       *domain.Category
	IsRead         *bool
	IsAcknowledged *bool
	Query          *string
	AsOfID         *int64
	Page           int
	PageSize       int
}

type FeedPage struct {
	Items    []domain.FeedItem
	Total    int64
	Page     int
	PageSize int
	AsOfID   int64
}

type NotificationRepository interface {
	CreateWithDeliveries(ctx context.Context, n *domain.Notification, recipientIDs []int64) error
	GetByID(ctx context.Context, id int64) (*domain.Notification, error)
	ListFeed(ctx context.Context, userID int64, params FeedParams) (*FeedPage, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

// CreateWithDeliveries inserts the notification and one unread, unacknowledged
// delivery row per recipient in a single transaction.
func (r *GormNotificationRepo) CreateWithDeliveries(ctx context.Context, n *domain.Notification, recipientIDs []int64) error {
	model := notificationModelFromDomain(n)
	if model == nil {
		return storageError("create notification", gorm.ErrInvalidData)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if len(recipientIDs) == 0 {
			return nil
		}

		rows := make([]DeliveryStatusModel, 0, len(recipientIDs))
		for _, userID := range recipientIDs {
			rows = append(rows, DeliveryStatusModel{
				NotificationID: model.ID,
				UserID:         userID,
			})
		}
		return tx.CreateInBatches(&rows, deliveryInsertBatchSize).Error
	})
	if err != nil {
		return storageError("create notification with deliveries", err)
	}

	*n = *notificationModelToDomain(model)
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		return nil, storageError("get notification", err)
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) ListFeed(ctx context.Context, userID int64, params FeedParams) (*FeedPage, error) {
	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	var asOfID int64
	if params.AsOfID != nil {
		asOfID = *params.AsOfID
	} else {
		err := r.db.WithContext(ctx).
			Model(&DeliveryStatusModel{}).
			Select("COALESCE(MAX(notification_id), 0)").
			Where("user_id = ?", userID).
			Scan(&asOfID).Error
		if err != nil {
			return nil, storageError("resolve feed snapshot", err)
		}
	}

	filtered := func() *gorm.DB {
		query := r.feedQuery(ctx, userID).Where("d.notification_id <= ?", asOfID)
		if params.Category != nil {
			query = query.Where("n.category = ?", *params.Category)
		}
		if params.IsRead != nil {
			query = query.Where("d.is_read = ?", *params.IsRead)
		}
		if params.IsAcknowledged != nil {
			query = query.Where("d.is_acknowledged = ?", *params.IsAcknowledged)
		}
		if params.Query != nil {
			if term := strings.TrimSpace(*params.Query); term != "" {
				pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
				query = query.Where(`(LOWER(n.title) LIKE ? ESCAPE '\' OR LOWER(n.body) LIKE ? ESCAPE '\')`, pattern, pattern)
			}
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, storageError("count feed", err)
	}

	var rows []feedRow
	err := filtered().
		Select(feedColumns).
		Order("d.notification_id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, storageError("list feed", err)
	}

	return &FeedPage{
		Items:    feedRowsToDomain(rows),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		AsOfID:   asOfID,
	}, nil
}

func (r *GormNotificationRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error) {
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	var rows []feedRow
	err := r.feedQuery(ctx, userID).
		Select(feedColumns).
		Order("d.notification_id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, storageError("list recent feed", err)
	}
	return feedRowsToDomain(rows), nil
}

const feedColumns = `n.id AS id, n.category AS category, n.event AS event, n.title AS title, n.body AS body,
n.reference_entity_type AS reference_entity_type, n.reference_entity_id AS reference_entity_id,
n.actor_id AS actor_id, u.display_name AS actor_display_name, n.created_at AS created_at,
d.is_read AS is_read, d.read_at AS read_at, d.is_acknowledged AS is_acknowledged, d.acknowledged_at AS acknowledged_at`

func (r *GormNotificationRepo) feedQuery(ctx context.Context, userID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("delivery_statuses AS d").
		Joins("JOIN notifications AS n ON n.id = d.notification_id").
		Joins("LEFT JOIN users AS u ON u.id = n.actor_id").
		Where("d.user_id = ?", userID)
}

func feedRowsToDomain(rows []feedRow) []domain.FeedItem {
	items := make([]domain.FeedItem, 0, len(rows))
	for i := range rows {
		items = append(items, feedRowToDomain(&rows[i]))
	}
	return items
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
