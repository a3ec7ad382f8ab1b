package domain

import (
	"fmt"
	"strings"
	"time"
)

const MaxFieldLength = 100

// Entity type tags used by the inventory collaborators. Any non-empty tag is
// accepted; these are the ones the surrounding system writes today.
const (
	EntityEquipment = "equipment"
	EntityNetwork   = "network"
	EntityUser      = "user"
	EntityTask      = "task"
)

// RevisionRecord is one append-only before/after entry for a single field.
type RevisionRecord struct {
	ID         int64
	EntityType string
	EntityID   int64
	Field      string
	OldValue   *string
	NewValue   *string
	ChangedBy  *int64
	ChangedAt  time.Time
}

func NormalizeEntityType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func ValidateEntityKey(entityType string, entityID int64) error {
	if entityType == "" {
		return fmt.Errorf("%w: entity type is required", ErrValidation)
	}
	if len([]rune(entityType)) > MaxEntityTypeLength {
		return fmt.Errorf("%w: entity type exceeds %d characters", ErrValidation, MaxEntityTypeLength)
	}
	if entityID <= 0 {
		return fmt.Errorf("%w: entity id must be positive", ErrValidation)
	}
	return nil
}

func (r *RevisionRecord) Validate() error {
	if err := ValidateEntityKey(r.EntityType, r.EntityID); err != nil {
		return err
	}
	if r.Field == "" {
		return fmt.Errorf("%w: field is required", ErrValidation)
	}
	if len([]rune(r.Field)) > MaxFieldLength {
		return fmt.Errorf("%w: field exceeds %d characters", ErrValidation, MaxFieldLength)
	}
	if r.ChangedBy != nil && *r.ChangedBy <= 0 {
		return fmt.Errorf("%w: actor id must be positive", ErrValidation)
	}
	return nil
}

// ValuesEqual reports whether a field change is a no-op. Nil and the empty
// string are interchangeable; anything else compares by value.
func ValuesEqual(oldValue, newValue *string) bool {
	oldEmpty := oldValue == nil || *oldValue == ""
	newEmpty := newValue == nil || *newValue == ""
	if oldEmpty || newEmpty {
		return oldEmpty && newEmpty
	}
	return *oldValue == *newValue
}
