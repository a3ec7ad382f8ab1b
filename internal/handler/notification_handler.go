package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"github.com/kursadbilgin/inventory-notifier/internal/service"
)

type NotificationService interface {
	Publish(ctx context.Context, req service.PublishRequest) (int64, error)
	MarkRead(ctx context.Context, notificationID, userID int64) (bool, error)
	Acknowledge(ctx context.Context, notificationID, userID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	AcknowledgeAll(ctx context.Context, userID int64) (int64, error)
	GetSummary(ctx context.Context, userID int64) (service.Summary, error)
	ListFeed(ctx context.Context, userID int64, filter service.FeedFilter, page service.PageRequest) (*repository.FeedPage, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error)
}

type NotificationHandler struct {
	service      NotificationService
	pollInterval time.Duration
}

func NewNotificationHandler(service NotificationService, pollInterval time.Duration) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &NotificationHandler{service: service, pollInterval: pollInterval}, nil
}

// RegisterNotificationRoutes mounts the publish endpoint and the per-recipient
// routes under /v1/me. pollThrottle guards only the summary route.
func RegisterNotificationRoutes(
	router fiber.Router,
	service NotificationService,
	pollInterval time.Duration,
	pollThrottle fiber.Handler,
) error {
	h, err := NewNotificationHandler(service, pollInterval)
	if err != nil {
		return err
	}
	if pollThrottle == nil {
		pollThrottle = func(c *fiber.Ctx) error { return c.Next() }
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.PublishNotification)

	me := v1.Group("/me/notifications", RequireUser())
	me.Get("/summary", pollThrottle, h.GetSummary)
	me.Get("/recent", h.ListRecent)
	me.Get("/", h.ListFeed)
	me.Post("/read-all", h.MarkAllRead)
	me.Post("/acknowledge-all", h.AcknowledgeAll)
	me.Post("/:id/read", h.MarkRead)
	me.Post("/:id/acknowledge", h.Acknowledge)

	return nil
}

type publishNotificationRequest struct {
	Category     string            `json:"category"`
	Event        string            `json:"event"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Reference    *referencePayload `json:"reference,omitempty"`
	ActorID      *int64            `json:"actorId,omitempty"`
	ExcludeActor bool              `json:"excludeActor"`
}

type referencePayload struct {
	EntityType string `json:"entityType"`
	EntityID   int64  `json:"entityId"`
}

type feedItemResponse struct {
	ID                   int64             `json:"id"`
	Category             string            `json:"category"`
	Event                string            `json:"event"`
	Title                string            `json:"title"`
	Body                 string            `json:"body"`
	Reference            *referencePayload `json:"reference,omitempty"`
	ActorID              *int64            `json:"actorId,omitempty"`
	CreatedByDisplayName *string           `json:"createdByDisplayName,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	IsRead               bool              `json:"isRead"`
	ReadAt               *time.Time        `json:"readAt,omitempty"`
	IsAcknowledged       bool              `json:"isAcknowledged"`
	AcknowledgedAt       *time.Time        `json:"acknowledgedAt,omitempty"`
}

type feedResponse struct {
	Data []feedItemResponse `json:"data"`
	Meta feedMeta           `json:"meta"`
}

type feedMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	AsOf     int64 `json:"asOf"`
}

type summaryResponse struct {
	Unacknowledged      int64 `json:"unacknowledged"`
	Unread              int64 `json:"unread"`
	PollIntervalSeconds int   `json:"pollIntervalSeconds"`
}

type transitionResponse struct {
	NotificationID int64 `json:"notificationId"`
	Changed        bool  `json:"changed"`
}

func (h *NotificationHandler) PublishNotification(c *fiber.Ctx) error {
	var req publishNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return toHTTPError(err)
	}

	publish := service.PublishRequest{
		Category:     category,
		Event:        req.Event,
		Title:        req.Title,
		Body:         req.Body,
		ActorID:      req.ActorID,
		ExcludeActor: req.ExcludeActor,
	}
	if req.Reference != nil {
		publish.Reference = &domain.Reference{
			EntityType: req.Reference.EntityType,
			EntityID:   req.Reference.EntityID,
		}
	}

	id, err := h.service.Publish(c.UserContext(), publish)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *NotificationHandler) GetSummary(c *fiber.Ctx) error {
	userID, _ := userIDFromLocals(c)

	summary, err := h.service.GetSummary(c.UserContext(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(fiber.StatusOK).JSON(summaryResponse{
		Unacknowledged:      summary.Unacknowledged,
		Unread:              summary.Unread,
		PollIntervalSeconds: int(h.pollInterval / time.Second),
	})
}

func (h *NotificationHandler) ListRecent(c *fiber.Ctx) error {
	userID, _ := userIDFromLocals(c)

	limit, err := parseOptionalInt(c.Query("limit"), "limit")
	if err != nil {
		return toHTTPError(err)
	}

	items, err := h.service.ListRecent(c.UserContext(), userID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": toFeedItemResponses(items)})
}

func (h *NotificationHandler) ListFeed(c *fiber.Ctx) error {
	userID, _ := userIDFromLocals(c)

	filter, page, err := parseFeedQuery(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.ListFeed(c.UserContext(), userID, filter, page)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(feedResponse{
		Data: toFeedItemResponses(result.Items),
		Meta: feedMeta{
			Page:     result.Page,
			PageSize: result.PageSize,
			Total:    result.Total,
			AsOf:     result.AsOfID,
		},
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	return h.transition(c, h.service.MarkRead)
}

func (h *NotificationHandler) Acknowledge(c *fiber.Ctx) error {
	return h.transition(c, h.service.Acknowledge)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	return h.bulkTransition(c, h.service.MarkAllRead)
}

func (h *NotificationHandler) AcknowledgeAll(c *fiber.Ctx) error {
	return h.bulkTransition(c, h.service.AcknowledgeAll)
}

func (h *NotificationHandler) transition(
	c *fiber.Ctx,
	apply func(ctx context.Context, notificationID, userID int64) (bool, error),
) error {
	userID, _ := userIDFromLocals(c)

	notificationID, err := strconv.ParseInt(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil || notificationID <= 0 {
		return toHTTPError(fmt.Errorf("%w: notification id must be a positive integer", domain.ErrValidation))
	}

	changed, err := apply(c.UserContext(), notificationID, userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(transitionResponse{
		NotificationID: notificationID,
		Changed:        changed,
	})
}

func (h *NotificationHandler) bulkTransition(
	c *fiber.Ctx,
	apply func(ctx context.Context, userID int64) (int64, error),
) error {
	userID, _ := userIDFromLocals(c)

	changed, err := apply(c.UserContext(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"changed": changed})
}

func parseFeedQuery(c *fiber.Ctx) (service.FeedFilter, service.PageRequest, error) {
	var (
		filter service.FeedFilter
		page   service.PageRequest
		err    error
	)

	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		category, err := domain.ParseCategoryFromString(raw)
		if err != nil {
			return filter, page, err
		}
		filter.Category = &category
	}
	if filter.IsRead, err = parseOptionalBool(c.Query("isRead"), "isRead"); err != nil {
		return filter, page, err
	}
	if filter.IsAcknowledged, err = parseOptionalBool(c.Query("isAcknowledged"), "isAcknowledged"); err != nil {
		return filter, page, err
	}
	if q := c.Query("q"); q != "" {
		filter.Query = &q
	}

	if page.Page, err = parseOptionalInt(c.Query("page"), "page"); err != nil {
		return filter, page, err
	}
	if page.PageSize, err = parseOptionalInt(c.Query("pageSize"), "pageSize"); err != nil {
		return filter, page, err
	}
	if raw := strings.TrimSpace(c.Query("asOf")); raw != "" {
		asOf, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, page, fmt.Errorf("%w: asOf must be an integer", domain.ErrValidation)
		}
		page.AsOfID = &asOf
	}

	return filter, page, nil
}

func parseOptionalBool(value string, field string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", domain.ErrValidation, field)
	}
	return &parsed, nil
}

// parseOptionalInt returns 0 for an absent value so the service applies its
// default.
func parseOptionalInt(value string, field string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, field)
	}
	return parsed, nil
}

func toFeedItemResponses(items []domain.FeedItem) []feedItemResponse {
	responses := make([]feedItemResponse, 0, len(items))
	for _, item := range items {
		resp := feedItemResponse{
			ID:                   item.ID,
			Category:             item.Category.String(),
			Event:                item.Event,
			Title:                item.Title,
			Body:                 item.Body,
			ActorID:              item.ActorID,
			CreatedByDisplayName: item.CreatedByDisplayName,
			CreatedAt:            item.CreatedAt,
			IsRead:               item.IsRead,
			ReadAt:               item.ReadAt,
			IsAcknowledged:       item.IsAcknowledged,
			AcknowledgedAt:       item.AcknowledgedAt,
		}
		if item.ReferenceEntityType != nil && item.ReferenceEntityID != nil {
			resp.Reference = &referencePayload{
				EntityType: *item.ReferenceEntityType,
				EntityID:   *item.ReferenceEntityID,
			}
		}
		responses = append(responses, resp)
	}
	return responses
}

// toHTTPError maps domain sentinels to client statuses. Storage and unknown
// errors pass through for transport.ErrorHandler to classify.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return err
	}
}
