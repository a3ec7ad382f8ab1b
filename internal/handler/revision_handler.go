package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/service"
)

type RevisionService interface {
	RecordChanges(ctx context.Context, entityType string, entityID int64, actorID *int64, changes []service.FieldChange) (int, error)
	ListRevisions(ctx context.Context, entityType string, entityID int64, limit int) ([]domain.RevisionRecord, error)
}

type RevisionHandler struct {
	service RevisionService
}

func NewRevisionHandler(service RevisionService) (*RevisionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("revision service is required")
	}
	return &RevisionHandler{service: service}, nil
}

func RegisterRevisionRoutes(router fiber.Router, service RevisionService) error {
	h, err := NewRevisionHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/revisions", h.RecordChanges)
	v1.Get("/revisions/:entityType/:entityId", h.ListRevisions)
	return nil
}

type recordChangesRequest struct {
	EntityType string          `json:"entityType"`
	EntityID   int64           `json:"entityId"`
	ActorID    *int64          `json:"actorId,omitempty"`
	Changes    []changeRequest `json:"changes"`
}

type changeRequest struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

type revisionResponse struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   int64     `json:"entityId"`
	Field      string    `json:"field"`
	OldValue   *string   `json:"oldValue"`
	NewValue   *string   `json:"newValue"`
	ChangedBy  *int64    `json:"changedBy,omitempty"`
	ChangedAt  time.Time `json:"changedAt"`
}

// RecordChanges appends one revision per changed field. Fields whose old and
// new values are equal are skipped and not counted in the response.
func (h *RevisionHandler) RecordChanges(c *fiber.Ctx) error {
	var req recordChangesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Changes) == 0 {
		return toHTTPError(fmt.Errorf("%w: changes must not be empty", domain.ErrValidation))
	}

	changes := make([]service.FieldChange, 0, len(req.Changes))
	for _, change := range req.Changes {
		changes = append(changes, service.FieldChange{
			Field:    change.Field,
			OldValue: change.OldValue,
			NewValue: change.NewValue,
		})
	}

	recorded, err := h.service.RecordChanges(c.UserContext(), req.EntityType, req.EntityID, req.ActorID, changes)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"recorded": recorded})
}

func (h *RevisionHandler) ListRevisions(c *fiber.Ctx) error {
	entityID, err := strconv.ParseInt(strings.TrimSpace(c.Params("entityId")), 10, 64)
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: entity id must be an integer", domain.ErrValidation))
	}

	limit, err := parseOptionalInt(c.Query("limit"), "limit")
	if err != nil {
		return toHTTPError(err)
	}

	records, err := h.service.ListRevisions(c.UserContext(), c.Params("entityType"), entityID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]revisionResponse, 0, len(records))
	for _, r := range records {
		data = append(data, revisionResponse{
			ID:         r.ID,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Field:      r.Field,
			OldValue:   r.OldValue,
			NewValue:   r.NewValue,
			ChangedBy:  r.ChangedBy,
			ChangedAt:  r.ChangedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}
