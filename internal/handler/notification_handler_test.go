package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"github.com/kursadbilgin/inventory-notifier/internal/service"
	"github.com/kursadbilgin/inventory-notifier/internal/transport"
	"go.uber.org/zap"
)

func TestNotificationHandler_PublishNotification(t *testing.T) {
	t.Parallel()

	var got service.PublishRequest
	svc := &stubNotificationService{
		publishFn: func(ctx context.Context, req service.PublishRequest) (int64, error) {
			got = req
			return 77, nil
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	body := `{"category":"equipment","event":"assigned","title":"Laptop assigned","reference":{"entityType":"equipment","entityId":42},"actorId":3,"excludeActor":true}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["id"] != float64(77) {
		t.Fatalf("id = %v, want 77", parsed["id"])
	}
	if got.Category != domain.CategoryEquipment {
		t.Fatalf("category = %q, want %q", got.Category, domain.CategoryEquipment)
	}
	if got.Reference == nil || got.Reference.EntityID != 42 {
		t.Fatalf("reference = %+v, want equipment 42", got.Reference)
	}
	if got.ActorID == nil || *got.ActorID != 3 || !got.ExcludeActor {
		t.Fatalf("actor = %v exclude = %v, want 3 true", got.ActorID, got.ExcludeActor)
	}
}

func TestNotificationHandler_PublishValidation(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		publishFn: func(ctx context.Context, req service.PublishRequest) (int64, error) {
			return 0, fmt.Errorf("%w: title is required", domain.ErrValidation)
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"category":`},
		{name: "unknown category", body: `{"category":"printer","event":"x","title":"y"}`},
		{name: "service rejects", body: `{"category":"task","event":"x","title":""}`},
	}

	for _, tt := range tests {
		resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications", tt.body)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400, body=%s", tt.name, resp.StatusCode, string(body))
		}
	}
}

func TestNotificationHandler_RequiresUserHeader(t *testing.T) {
	t.Parallel()

	app := newNotificationTestApp(t, &stubNotificationService{}, nil)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not a number", header: "alice"},
		{name: "zero", header: "0"},
		{name: "negative", header: "-4"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/me/notifications/summary", nil)
		if tt.header != "" {
			req.Header.Set(HeaderUserID, tt.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", tt.name, resp.StatusCode)
		}
	}
}

func TestNotificationHandler_GetSummary(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		getSummaryFn: func(ctx context.Context, userID int64) (service.Summary, error) {
			if userID != 9 {
				t.Fatalf("userID = %d, want 9", userID)
			}
			return service.Summary{Unacknowledged: 4, Unread: 2}, nil
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	resp, body := performUserRequest(t, app, http.MethodGet, "/v1/me/notifications/summary", "", 9)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed summaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	want := summaryResponse{Unacknowledged: 4, Unread: 2, PollIntervalSeconds: 15}
	if parsed != want {
		t.Fatalf("summary = %+v, want %+v", parsed, want)
	}
}

func TestNotificationHandler_SummaryThrottled(t *testing.T) {
	t.Parallel()

	calls := 0
	svc := &stubNotificationService{
		getSummaryFn: func(ctx context.Context, userID int64) (service.Summary, error) {
			calls++
			return service.Summary{}, nil
		},
	}

	var subject string
	limiter := &stubLimiter{allowFn: func(ctx context.Context, s string) (bool, error) {
		subject = s
		return false, nil
	}}
	app := newNotificationTestApp(t, svc, PollThrottle(limiter, zap.NewNop(), nil))

	resp, body := performUserRequest(t, app, http.MethodGet, "/v1/me/notifications/summary", "", 5)
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429, body=%s", resp.StatusCode, string(body))
	}
	if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "1" {
		t.Fatalf("Retry-After = %q, want 1", got)
	}
	if subject != "user:5" {
		t.Fatalf("limiter subject = %q, want user:5", subject)
	}
	if calls != 0 {
		t.Fatalf("service calls = %d, want 0", calls)
	}
}

func TestNotificationHandler_SummaryFailsOpenWhenLimiterErrors(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		getSummaryFn: func(ctx context.Context, userID int64) (service.Summary, error) {
			return service.Summary{Unacknowledged: 1}, nil
		},
	}
	limiter := &stubLimiter{allowFn: func(ctx context.Context, s string) (bool, error) {
		return false, errors.New("redis down")
	}}
	app := newNotificationTestApp(t, svc, PollThrottle(limiter, zap.NewNop(), nil))

	resp, body := performUserRequest(t, app, http.MethodGet, "/v1/me/notifications/summary", "", 5)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
}

func TestNotificationHandler_ListFeedQuery(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entityType := "equipment"
	entityID := int64(42)

	svc := &stubNotificationService{
		listFeedFn: func(ctx context.Context, userID int64, filter service.FeedFilter, page service.PageRequest) (*repository.FeedPage, error) {
			if userID != 3 {
				t.Fatalf("userID = %d, want 3", userID)
			}
			if filter.Category == nil || *filter.Category != domain.CategoryWarranty {
				t.Fatalf("category = %v, want WARRANTY", filter.Category)
			}
			if filter.IsAcknowledged == nil || *filter.IsAcknowledged {
				t.Fatalf("isAcknowledged = %v, want false", filter.IsAcknowledged)
			}
			if filter.IsRead != nil {
				t.Fatalf("isRead = %v, want nil", *filter.IsRead)
			}
			if filter.Query == nil || *filter.Query != "dell" {
				t.Fatalf("query = %v, want dell", filter.Query)
			}
			if page.Page != 2 || page.PageSize != 10 {
				t.Fatalf("page = %+v, want page 2 size 10", page)
			}
			if page.AsOfID == nil || *page.AsOfID != 120 {
				t.Fatalf("asOf = %v, want 120", page.AsOfID)
			}

			return &repository.FeedPage{
				Items: []domain.FeedItem{{
					ID:                  101,
					Category:            domain.CategoryWarranty,
					Event:               "expiring",
					Title:               "Warranty expires in 30 days",
					ReferenceEntityType: &entityType,
					ReferenceEntityID:   &entityID,
					CreatedAt:           createdAt,
					IsRead:              true,
				}},
				Total:    11,
				Page:     2,
				PageSize: 10,
				AsOfID:   120,
			}, nil
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	path := "/v1/me/notifications?category=warranty&isAcknowledged=false&q=dell&page=2&pageSize=10&asOf=120"
	resp, body := performUserRequest(t, app, http.MethodGet, path, "", 3)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta != (feedMeta{Page: 2, PageSize: 10, Total: 11, AsOf: 120}) {
		t.Fatalf("meta = %+v", parsed.Meta)
	}
	if len(parsed.Data) != 1 {
		t.Fatalf("data len = %d, want 1", len(parsed.Data))
	}
	item := parsed.Data[0]
	if item.ID != 101 || item.Category != "WARRANTY" || !item.IsRead || item.IsAcknowledged {
		t.Fatalf("item = %+v", item)
	}
	if item.Reference == nil || item.Reference.EntityType != "equipment" || item.Reference.EntityID != 42 {
		t.Fatalf("reference = %+v, want equipment 42", item.Reference)
	}
}

func TestNotificationHandler_ListFeedRejectsBadQuery(t *testing.T) {
	t.Parallel()

	app := newNotificationTestApp(t, &stubNotificationService{}, nil)

	for _, query := range []string{
		"?category=printer",
		"?isRead=maybe",
		"?page=two",
		"?pageSize=x",
		"?asOf=latest",
	} {
		resp, body := performUserRequest(t, app, http.MethodGet, "/v1/me/notifications"+query, "", 3)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400, body=%s", query, resp.StatusCode, string(body))
		}
	}
}

func TestNotificationHandler_ListRecent(t *testing.T) {
	t.Parallel()

	var gotLimit int
	svc := &stubNotificationService{
		listRecentFn: func(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error) {
			gotLimit = limit
			return []domain.FeedItem{{ID: 1, Category: domain.CategoryTask}}, nil
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	resp, body := performUserRequest(t, app, http.MethodGet, "/v1/me/notifications/recent?limit=5", "", 3)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotLimit != 5 {
		t.Fatalf("limit = %d, want 5", gotLimit)
	}

	var parsed struct {
		Data []feedItemResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].Reference != nil {
		t.Fatalf("data = %+v, want one item without reference", parsed.Data)
	}
}

func TestNotificationHandler_Transitions(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markReadFn: func(ctx context.Context, notificationID, userID int64) (bool, error) {
			return notificationID == 10, nil
		},
		acknowledgeFn: func(ctx context.Context, notificationID, userID int64) (bool, error) {
			if notificationID == 404 {
				return false, fmt.Errorf("%w: delivery", domain.ErrNotFound)
			}
			if notificationID == 500 {
				return false, fmt.Errorf("%w: acknowledge: connection reset", domain.ErrStorage)
			}
			return false, nil
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantChanged bool
	}{
		{name: "read changes", path: "/v1/me/notifications/10/read", wantStatus: fiber.StatusOK, wantChanged: true},
		{name: "read noop", path: "/v1/me/notifications/11/read", wantStatus: fiber.StatusOK},
		{name: "ack repeat is noop", path: "/v1/me/notifications/10/acknowledge", wantStatus: fiber.StatusOK},
		{name: "ack not recipient", path: "/v1/me/notifications/404/acknowledge", wantStatus: fiber.StatusNotFound},
		{name: "ack storage down", path: "/v1/me/notifications/500/acknowledge", wantStatus: fiber.StatusServiceUnavailable},
		{name: "bad id", path: "/v1/me/notifications/abc/acknowledge", wantStatus: fiber.StatusBadRequest},
		{name: "zero id", path: "/v1/me/notifications/0/read", wantStatus: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		resp, body := performUserRequest(t, app, http.MethodPost, tt.path, "", 3)
		if resp.StatusCode != tt.wantStatus {
			t.Fatalf("%s: status = %d, want %d, body=%s", tt.name, resp.StatusCode, tt.wantStatus, string(body))
		}
		if tt.wantStatus != fiber.StatusOK {
			continue
		}

		var parsed transitionResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("%s: json unmarshal error = %v", tt.name, err)
		}
		if parsed.Changed != tt.wantChanged {
			t.Fatalf("%s: changed = %v, want %v", tt.name, parsed.Changed, tt.wantChanged)
		}
	}
}

func TestNotificationHandler_BulkTransitions(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markAllReadFn: func(ctx context.Context, userID int64) (int64, error) {
			return 2, nil
		},
		acknowledgeAllFn: func(ctx context.Context, userID int64) (int64, error) {
			return 3, nil
		},
	}
	app := newNotificationTestApp(t, svc, nil)

	tests := []struct {
		path string
		want float64
	}{
		{path: "/v1/me/notifications/read-all", want: 2},
		{path: "/v1/me/notifications/acknowledge-all", want: 3},
	}

	for _, tt := range tests {
		resp, body := performUserRequest(t, app, http.MethodPost, tt.path, "", 3)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("%s: status = %d, want 200, body=%s", tt.path, resp.StatusCode, string(body))
		}
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("json unmarshal error = %v", err)
		}
		if parsed["changed"] != tt.want {
			t.Fatalf("%s: changed = %v, want %v", tt.path, parsed["changed"], tt.want)
		}
	}
}

func TestNotificationHandler_EchoesRequestID(t *testing.T) {
	t.Parallel()

	app := newNotificationTestApp(t, &stubNotificationService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/me/notifications/summary", nil)
	req.Header.Set(HeaderUserID, "1")
	req.Header.Set(fiber.HeaderXRequestID, "corr-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderXRequestID); got != "corr-123" {
		t.Fatalf("X-Request-ID = %q, want corr-123", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/me/notifications/summary", nil)
	req.Header.Set(HeaderUserID, "1")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderXRequestID); got == "" {
		t.Fatal("X-Request-ID should be generated when absent")
	}
}

type stubNotificationService struct {
	publishFn        func(ctx context.Context, req service.PublishRequest) (int64, error)
	markReadFn       func(ctx context.Context, notificationID, userID int64) (bool, error)
	acknowledgeFn    func(ctx context.Context, notificationID, userID int64) (bool, error)
	markAllReadFn    func(ctx context.Context, userID int64) (int64, error)
	acknowledgeAllFn func(ctx context.Context, userID int64) (int64, error)
	getSummaryFn     func(ctx context.Context, userID int64) (service.Summary, error)
	listFeedFn       func(ctx context.Context, userID int64, filter service.FeedFilter, page service.PageRequest) (*repository.FeedPage, error)
	listRecentFn     func(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error)
}

func (s *stubNotificationService) Publish(ctx context.Context, req service.PublishRequest) (int64, error) {
	if s.publishFn != nil {
		return s.publishFn(ctx, req)
	}
	return 0, errors.New("not implemented")
}

func (s *stubNotificationService) MarkRead(ctx context.Context, notificationID, userID int64) (bool, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, notificationID, userID)
	}
	return false, nil
}

func (s *stubNotificationService) Acknowledge(ctx context.Context, notificationID, userID int64) (bool, error) {
	if s.acknowledgeFn != nil {
		return s.acknowledgeFn(ctx, notificationID, userID)
	}
	return false, nil
}

func (s *stubNotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func (s *stubNotificationService) AcknowledgeAll(ctx context.Context, userID int64) (int64, error) {
	if s.acknowledgeAllFn != nil {
		return s.acknowledgeAllFn(ctx, userID)
	}
	return 0, nil
}

func (s *stubNotificationService) GetSummary(ctx context.Context, userID int64) (service.Summary, error) {
	if s.getSummaryFn != nil {
		return s.getSummaryFn(ctx, userID)
	}
	return service.Summary{}, nil
}

func (s *stubNotificationService) ListFeed(
	ctx context.Context,
	userID int64,
	filter service.FeedFilter,
	page service.PageRequest,
) (*repository.FeedPage, error) {
	if s.listFeedFn != nil {
		return s.listFeedFn(ctx, userID, filter, page)
	}
	return &repository.FeedPage{}, nil
}

func (s *stubNotificationService) ListRecent(ctx context.Context, userID int64, limit int) ([]domain.FeedItem, error) {
	if s.listRecentFn != nil {
		return s.listRecentFn(ctx, userID, limit)
	}
	return nil, nil
}

type stubLimiter struct {
	allowFn func(ctx context.Context, subject string) (bool, error)
}

func (l *stubLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	return l.allowFn(ctx, subject)
}

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(RequestContext())
	return app
}

func newNotificationTestApp(t *testing.T, svc NotificationService, pollThrottle fiber.Handler) *fiber.App {
	t.Helper()

	app := newTestApp()
	if err := RegisterNotificationRoutes(app, svc, 15*time.Second, pollThrottle); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()
	return performUserRequest(t, app, method, path, body, 0)
}

// performUserRequest sends X-User-ID when userID is positive.
func performUserRequest(
	t *testing.T,
	app *fiber.App,
	method string,
	path string,
	body string,
	userID int64,
) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if userID > 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(userID, 10))
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
