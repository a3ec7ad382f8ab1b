package repository

import (
	"context"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"gorm.io/gorm"
)

const (
	DefaultRevisionLimit = 50
	MaxRevisionLimit     = 500
)

// RevisionRepository is append-only. Retention is handled outside this
// service.
type RevisionRepository interface {
	Create(ctx context.Context, r *domain.RevisionRecord) error
	CreateBatch(ctx context.Context, records []*domain.RevisionRecord) error
	ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]domain.RevisionRecord, error)
}

type GormRevisionRepo struct {
	db *gorm.DB
}

func NewGormRevisionRepo(db *gorm.DB) *GormRevisionRepo {
	return &GormRevisionRepo{db: db}
}

func (r *GormRevisionRepo) Create(ctx context.Context, rec *domain.RevisionRecord) error {
	model := revisionModelFromDomain(rec)
	if model == nil {
		return storageError("create revision", gorm.ErrInvalidData)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return storageError("create revision", err)
	}
	*rec = *revisionModelToDomain(model)
	return nil
}

func (r *GormRevisionRepo) CreateBatch(ctx context.Context, records []*domain.RevisionRecord) error {
	models := make([]RevisionRecordModel, 0, len(records))
	modelIndexes := make([]int, 0, len(records))
	for i, rec := range records {
		model := revisionModelFromDomain(rec)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, 100).Error
	})
	if err != nil {
		return storageError("create revisions", err)
	}

	for i := range models {
		idx := modelIndexes[i]
		*records[idx] = *revisionModelToDomain(&models[i])
	}
	return nil
}

func (r *GormRevisionRepo) ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]domain.RevisionRecord, error) {
	if limit < 1 {
		limit = DefaultRevisionLimit
	}
	limit = min(limit, MaxRevisionLimit)

	var models []RevisionRecordModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, storageError("list revisions", err)
	}

	revisions := make([]domain.RevisionRecord, 0, len(models))
	for i := range models {
		revisions = append(revisions, *revisionModelToDomain(&models[i]))
	}
	return revisions, nil
}
