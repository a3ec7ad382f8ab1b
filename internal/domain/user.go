package domain

import "time"

// UserStatus mirrors the account state kept by the inventory's user module.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

func (s UserStatus) String() string { return string(s) }

func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// User is the read-only view of an inventory account. The users table is
// owned by the surrounding system.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	Status      UserStatus
	CreatedAt   time.Time
}
