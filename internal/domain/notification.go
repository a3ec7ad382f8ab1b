package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category groups notifications by the part of the inventory they concern.
type Category string

const (
	CategoryEquipment Category = "EQUIPMENT"
	CategoryNetwork   Category = "NETWORK"
	CategoryTask      Category = "TASK"
	CategoryUser      Category = "USER"
	CategoryWarranty  Category = "WARRANTY"
	CategorySystem    Category = "SYSTEM"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryEquipment, CategoryNetwork, CategoryTask, CategoryUser, CategoryWarranty, CategorySystem:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// Field limits (in characters).
const (
	MaxEventLength      = 64
	MaxTitleLength      = 255
	MaxBodyLength       = 10000
	MaxEntityTypeLength = 50
)

// Reference points a notification at the entity it concerns.
type Reference struct {
	EntityType string
	EntityID   int64
}

func (r *Reference) Validate() error {
	if r == nil {
		return nil
	}
	if r.EntityType == "" {
		return fmt.Errorf("%w: reference entity type is required", ErrValidation)
	}
	if len([]rune(r.EntityType)) > MaxEntityTypeLength {
		return fmt.Errorf("%w: reference entity type exceeds %d characters", ErrValidation, MaxEntityTypeLength)
	}
	if r.EntityID <= 0 {
		return fmt.Errorf("%w: reference entity id must be positive", ErrValidation)
	}
	return nil
}

// Notification is an immutable event announcement fanned out to recipients.
type Notification struct {
	ID        int64
	Category  Category
	Event     string
	Title     string
	Body      string
	Reference *Reference
	ActorID   *int64
	CreatedAt time.Time
}

func (n *Notification) Validate() error {
	if !n.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, n.Category)
	}
	if n.Event == "" {
		return fmt.Errorf("%w: event is required", ErrValidation)
	}
	if l := len([]rune(n.Event)); l > MaxEventLength {
		return fmt.Errorf("%w: event exceeds %d characters (got %d)", ErrValidation, MaxEventLength, l)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if l := len([]rune(n.Title)); l > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, l)
	}
	if l := len([]rune(n.Body)); l > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, l)
	}
	if n.ActorID != nil && *n.ActorID <= 0 {
		return fmt.Errorf("%w: actor id must be positive", ErrValidation)
	}
	return n.Reference.Validate()
}

// DeliveryStatus is one recipient's read/acknowledge state for a notification.
// Both flags only move forward; AcknowledgedAt is never rewritten once set.
type DeliveryStatus struct {
	NotificationID int64
	UserID         int64
	IsRead         bool
	ReadAt         *time.Time
	IsAcknowledged bool
	AcknowledgedAt *time.Time
}

// FeedItem is a notification as seen by a single recipient.
type FeedItem struct {
	ID                   int64
	Category             Category
	Event                string
	Title                string
	Body                 string
	ReferenceEntityType  *string
	ReferenceEntityID    *int64
	ActorID              *int64
	CreatedByDisplayName *string
	CreatedAt            time.Time
	IsRead               bool
	ReadAt               *time.Time
	IsAcknowledged       bool
	AcknowledgedAt       *time.Time
}
