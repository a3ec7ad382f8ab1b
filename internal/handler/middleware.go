package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/observability"
	"github.com/kursadbilgin/inventory-notifier/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	// HeaderUserID carries the recipient id resolved by the upstream session
	// layer.
	HeaderUserID = "X-User-ID"

	localsUserID = "userId"
)

// RequestContext propagates the request correlation id into the user
// context, generating one when the caller did not send X-Request-ID.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := requestCorrelationID(c)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, correlationID)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		return c.Next()
	}
}

// RequireUser rejects requests without a valid X-User-ID with 401. The id is
// the only source of identity for per-recipient routes; bodies never carry
// it.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(HeaderUserID))
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+HeaderUserID+" header")
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid "+HeaderUserID+" header")
		}

		c.Locals(localsUserID, userID)
		c.SetUserContext(observability.WithUserID(c.UserContext(), userID))
		return c.Next()
	}
}

// PollThrottle caps summary polls per user. Limiter failures are logged and
// the request is let through.
func PollThrottle(limiter ratelimit.RateLimiter, logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		userID, ok := userIDFromLocals(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+HeaderUserID+" header")
		}

		allowed, err := limiter.Allow(c.UserContext(), fmt.Sprintf("user:%d", userID))
		if err != nil {
			observability.WithContextLogger(logger, c.UserContext()).Warn("poll rate limiter unavailable, allowing request",
				zap.Error(err),
			)
			return c.Next()
		}
		if !allowed {
			metrics.IncPollThrottled()
			c.Set(fiber.HeaderRetryAfter, "1")
			return toHTTPError(fmt.Errorf("%w: poll rate exceeded, retry after 1s", domain.ErrRateLimited))
		}

		return c.Next()
	}
}

func userIDFromLocals(c *fiber.Ctx) (int64, bool) {
	userID, ok := c.Locals(localsUserID).(int64)
	return userID, ok && userID > 0
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
