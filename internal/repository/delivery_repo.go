package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"gorm.io/gorm"
)

// DeliveryRepository owns the per-recipient read/acknowledge state. Every
// transition is a conditional update on the current flag value, so the first
// committed writer wins and later callers observe a no-op.
type DeliveryRepository interface {
	MarkRead(ctx context.Context, notificationID, userID int64) (bool, error)
	Acknowledge(ctx context.Context, notificationID, userID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	AcknowledgeAll(ctx context.Context, userID int64) (int64, error)
	CountUnacknowledged(ctx context.Context, userID int64) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	ListByNotification(ctx context.Context, notificationID int64) ([]domain.DeliveryStatus, error)
}

type GormDeliveryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db, now: time.Now}
}

func (r *GormDeliveryRepo) MarkRead(ctx context.Context, notificationID, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("notification_id = ? AND user_id = ? AND is_read = FALSE", notificationID, userID).
		Updates(map[string]any{
			"is_read": true,
			"read_at": r.now().UTC(),
		})
	if result.Error != nil {
		return false, storageError("mark delivery read", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	return false, r.ensureExists(ctx, notificationID, userID)
}

// Acknowledge also marks the row read; an earlier read_at is preserved.
func (r *GormDeliveryRepo) Acknowledge(ctx context.Context, notificationID, userID int64) (bool, error) {
	now := r.now().UTC()
	result := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("notification_id = ? AND user_id = ? AND is_acknowledged = FALSE", notificationID, userID).
		Updates(acknowledgeUpdates(now))
	if result.Error != nil {
		return false, storageError("acknowledge delivery", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	return false, r.ensureExists(ctx, notificationID, userID)
}

func (r *GormDeliveryRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("user_id = ? AND is_read = FALSE", userID).
		Updates(map[string]any{
			"is_read": true,
			"read_at": r.now().UTC(),
		})
	if result.Error != nil {
		return 0, storageError("mark all deliveries read", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) AcknowledgeAll(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("user_id = ? AND is_acknowledged = FALSE", userID).
		Updates(acknowledgeUpdates(r.now().UTC()))
	if result.Error != nil {
		return 0, storageError("acknowledge all deliveries", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) CountUnacknowledged(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("user_id = ? AND is_acknowledged = FALSE", userID).
		Count(&count).Error
	if err != nil {
		return 0, storageError("count unacknowledged deliveries", err)
	}
	return count, nil
}

func (r *GormDeliveryRepo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("user_id = ? AND is_read = FALSE", userID).
		Count(&count).Error
	if err != nil {
		return 0, storageError("count unread deliveries", err)
	}
	return count, nil
}

func (r *GormDeliveryRepo) ListByNotification(ctx context.Context, notificationID int64) ([]domain.DeliveryStatus, error) {
	var models []DeliveryStatusModel
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("user_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, storageError("list deliveries", err)
	}

	statuses := make([]domain.DeliveryStatus, 0, len(models))
	for i := range models {
		statuses = append(statuses, *deliveryModelToDomain(&models[i]))
	}
	return statuses, nil
}

func (r *GormDeliveryRepo) ensureExists(ctx context.Context, notificationID, userID int64) error {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryStatusModel{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error
	if err != nil {
		return storageError("lookup delivery", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: notification %d was not delivered to user %d", domain.ErrNotFound, notificationID, userID)
	}
	return nil
}

func acknowledgeUpdates(now time.Time) map[string]any {
	return map[string]any{
		"is_acknowledged": true,
		"acknowledged_at": now,
		"is_read":         true,
		"read_at":         gorm.Expr("COALESCE(read_at, ?)", now),
	}
}
