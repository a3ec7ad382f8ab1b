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

const (
	revisionResultRecorded  = "recorded"
	revisionResultUnchanged = "unchanged"
	revisionResultFailed    = "failed"
)

type RevisionService struct {
	revisions repository.RevisionRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

type ChangeRequest struct {
	EntityType string
	EntityID   int64
	Field      string
	OldValue   *string
	NewValue   *string
	ActorID    *int64
}

// FieldChange is one entry of a multi-field edit.
type FieldChange struct {
	Field    string
	OldValue *string
	NewValue *string
}

func NewRevisionService(
	revisions repository.RevisionRepository,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*RevisionService, error) {
	if revisions == nil {
		return nil, errors.New("revision repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RevisionService{
		revisions: revisions,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// RecordChange appends one revision row unless old and new are equal, in
// which case nothing is written and recorded is false.
func (s *RevisionService) RecordChange(ctx context.Context, req ChangeRequest) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	record := &domain.RevisionRecord{
		EntityType: domain.NormalizeEntityType(req.EntityType),
		EntityID:   req.EntityID,
		Field:      strings.TrimSpace(req.Field),
		OldValue:   req.OldValue,
		NewValue:   req.NewValue,
		ChangedBy:  req.ActorID,
		ChangedAt:  s.now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return false, err
	}

	if domain.ValuesEqual(record.OldValue, record.NewValue) {
		s.metrics.IncRevision(record.EntityType, revisionResultUnchanged)
		return false, nil
	}

	if err := s.revisions.Create(ctx, record); err != nil {
		s.metrics.IncRevision(record.EntityType, revisionResultFailed)
		observability.WithContextLogger(s.logger, ctx).Error("failed to record revision",
			zap.String("entityType", record.EntityType),
			zap.Int64("entityId", record.EntityID),
			zap.String("field", record.Field),
			zap.Error(err),
		)
		return false, asStorageError("record revision", err)
	}

	s.metrics.IncRevision(record.EntityType, revisionResultRecorded)
	return true, nil
}

// RecordChanges records every field of one entity edit. Unchanged fields are
// skipped; the rest are appended atomically. It returns how many rows were
// written.
func (s *RevisionService) RecordChanges(
	ctx context.Context,
	entityType string,
	entityID int64,
	actorID *int64,
	changes []FieldChange,
) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	entityType = domain.NormalizeEntityType(entityType)
	if err := domain.ValidateEntityKey(entityType, entityID); err != nil {
		return 0, err
	}

	now := s.now().UTC()
	records := make([]*domain.RevisionRecord, 0, len(changes))
	unchanged := 0
	for i, change := range changes {
		record := &domain.RevisionRecord{
			EntityType: entityType,
			EntityID:   entityID,
			Field:      strings.TrimSpace(change.Field),
			OldValue:   change.OldValue,
			NewValue:   change.NewValue,
			ChangedBy:  actorID,
			ChangedAt:  now,
		}
		if err := record.Validate(); err != nil {
			return 0, fmt.Errorf("change %d: %w", i, err)
		}
		if domain.ValuesEqual(record.OldValue, record.NewValue) {
			unchanged++
			continue
		}
		records = append(records, record)
	}

	for range unchanged {
		s.metrics.IncRevision(entityType, revisionResultUnchanged)
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := s.revisions.CreateBatch(ctx, records); err != nil {
		s.metrics.IncRevision(entityType, revisionResultFailed)
		observability.WithContextLogger(s.logger, ctx).Error("failed to record revisions",
			zap.String("entityType", entityType),
			zap.Int64("entityId", entityID),
			zap.Int("changes", len(records)),
			zap.Error(err),
		)
		return 0, asStorageError("record revisions", err)
	}

	for range records {
		s.metrics.IncRevision(entityType, revisionResultRecorded)
	}
	return len(records), nil
}

func (s *RevisionService) ListRevisions(
	ctx context.Context,
	entityType string,
	entityID int64,
	limit int,
) ([]domain.RevisionRecord, error) {
	entityType = domain.NormalizeEntityType(entityType)
	if err := domain.ValidateEntityKey(entityType, entityID); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}
	if limit == 0 {
		limit = repository.DefaultRevisionLimit
	}
	limit = min(limit, repository.MaxRevisionLimit)

	return s.revisions.ListByEntity(ctx, entityType, entityID, limit)
}
