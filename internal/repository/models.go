package repository

import (
	"time"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
)

// UserModel is the persistence model for the users table. The table belongs
// to the inventory's account module; this service only reads it, except for
// directory sync and tests.
type UserModel struct {
	ID          int64             `gorm:"primaryKey;autoIncrement"`
	Username    string            `gorm:"type:varchar(100);not null;uniqueIndex"`
	DisplayName string            `gorm:"type:varchar(255);not null"`
	Status      domain.UserStatus `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement"`
	Category            domain.Category `gorm:"type:varchar(20);not null"`
	Event               string          `gorm:"type:varchar(64);not null"`
	Title               string          `gorm:"type:varchar(255);not null"`
	Body                string          `gorm:"type:text;not null"`
	ReferenceEntityType *string         `gorm:"type:varchar(50)"`
	ReferenceEntityID   *int64
	ActorID             *int64
	CreatedAt           time.Time `gorm:"not null"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryStatusModel is the persistence model for delivery_statuses, keyed
// by (notification_id, user_id).
type DeliveryStatusModel struct {
	NotificationID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID         int64 `gorm:"primaryKey;autoIncrement:false"`
	IsRead         bool  `gorm:"not null"`
	ReadAt         *time.Time
	IsAcknowledged bool `gorm:"not null"`
	AcknowledgedAt *time.Time

	Notification *NotificationModel `gorm:"foreignKey:NotificationID;references:ID;constraint:OnDelete:CASCADE"`
}

func (DeliveryStatusModel) TableName() string {
	return "delivery_statuses"
}

// RevisionRecordModel is the persistence model for revision_records.
type RevisionRecordModel struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	EntityType string  `gorm:"type:varchar(50);not null"`
	EntityID   int64   `gorm:"not null"`
	Field      string  `gorm:"type:varchar(100);not null"`
	OldValue   *string `gorm:"type:text"`
	NewValue   *string `gorm:"type:text"`
	ChangedBy  *int64
	ChangedAt  time.Time `gorm:"not null"`
}

func (RevisionRecordModel) TableName() string {
	return "revision_records"
}

// feedRow is the scan target for the delivery/notification/user join.
type feedRow struct {
	ID                  int64
	Category            domain.Category
	Event               string
	Title               string
	Body                string
	ReferenceEntityType *string
	ReferenceEntityID   *int64
	ActorID             *int64
	ActorDisplayName    *string
	CreatedAt           time.Time
	IsRead              bool
	ReadAt              *time.Time
	IsAcknowledged      bool
	AcknowledgedAt      *time.Time
}

func userModelFromDomain(u *domain.User) *UserModel {
	if u == nil {
		return nil
	}

	return &UserModel{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
	}
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
	}
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	m := &NotificationModel{
		ID:        n.ID,
		Category:  n.Category,
		Event:     n.Event,
		Title:     n.Title,
		Body:      n.Body,
		ActorID:   n.ActorID,
		CreatedAt: n.CreatedAt,
	}
	if n.Reference != nil {
		entityType := n.Reference.EntityType
		entityID := n.Reference.EntityID
		m.ReferenceEntityType = &entityType
		m.ReferenceEntityID = &entityID
	}
	return m
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	n := &domain.Notification{
		ID:        m.ID,
		Category:  m.Category,
		Event:     m.Event,
		Title:     m.Title,
		Body:      m.Body,
		ActorID:   m.ActorID,
		CreatedAt: m.CreatedAt,
	}
	if m.ReferenceEntityType != nil && m.ReferenceEntityID != nil {
		n.Reference = &domain.Reference{
			EntityType: *m.ReferenceEntityType,
			EntityID:   *m.ReferenceEntityID,
		}
	}
	return n
}

func deliveryModelToDomain(m *DeliveryStatusModel) *domain.DeliveryStatus {
	if m == nil {
		return nil
	}

	return &domain.DeliveryStatus{
		NotificationID: m.NotificationID,
		UserID:         m.UserID,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		IsAcknowledged: m.IsAcknowledged,
		AcknowledgedAt: m.AcknowledgedAt,
	}
}

func revisionModelFromDomain(r *domain.RevisionRecord) *RevisionRecordModel {
	if r == nil {
		return nil
	}

	return &RevisionRecordModel{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Field:      r.Field,
		OldValue:   r.OldValue,
		NewValue:   r.NewValue,
		ChangedBy:  r.ChangedBy,
		ChangedAt:  r.ChangedAt,
	}
}

func revisionModelToDomain(m *RevisionRecordModel) *domain.RevisionRecord {
	if m == nil {
		return nil
	}

	return &domain.RevisionRecord{
		ID:         m.ID,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Field:      m.Field,
		OldValue:   m.OldValue,
		NewValue:   m.NewValue,
		ChangedBy:  m.ChangedBy,
		ChangedAt:  m.ChangedAt,
	}
}

func feedRowToDomain(r *feedRow) domain.FeedItem {
	return domain.FeedItem{
		ID:                   r.ID,
		Category:             r.Category,
		Event:                r.Event,
		Title:                r.Title,
		Body:                 r.Body,
		ReferenceEntityType:  r.ReferenceEntityType,
		ReferenceEntityID:    r.ReferenceEntityID,
		ActorID:              r.ActorID,
		CreatedByDisplayName: r.ActorDisplayName,
		CreatedAt:            r.CreatedAt,
		IsRead:               r.IsRead,
		ReadAt:               r.ReadAt,
		IsAcknowledged:       r.IsAcknowledged,
		AcknowledgedAt:       r.AcknowledgedAt,
	}
}
