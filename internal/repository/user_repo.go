package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"gorm.io/gorm"
)

type UserRepository interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateStatus(ctx context.Context, id int64, status domain.UserStatus) error
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) ListActiveIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("status = ?", domain.UserStatusActive).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, storageError("list active users", err)
	}
	return ids, nil
}

func (r *GormUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var model UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, storageError("get user", err)
	}
	return userModelToDomain(&model), nil
}

func (r *GormUserRepo) Create(ctx context.Context, u *domain.User) error {
	if u == nil || !u.Status.IsValid() {
		return fmt.Errorf("%w: user with a valid status is required", domain.ErrValidation)
	}
	model := userModelFromDomain(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return storageError("create user", err)
	}
	*u = *userModelToDomain(model)
	return nil
}

func (r *GormUserRepo) UpdateStatus(ctx context.Context, id int64, status domain.UserStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid user status %q", domain.ErrValidation, status)
	}
	result := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return storageError("update user status", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
