package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inventory_notifier"

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec
	notificationsPublished    *prometheus.CounterVec
	notificationPublishFailed *prometheus.CounterVec
	deliveriesCreated         *prometheus.CounterVec
	deliveryTransitions       *prometheus.CounterVec
	revisionsRecorded         *prometheus.CounterVec
	intakeMessages            *prometheus.CounterVec
	pollThrottled             prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_published_total",
				Help:      "Total number of notifications published.",
			},
			[]string{"category"},
		),
		notificationPublishFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_publish_failures_total",
				Help:      "Total number of publish calls that failed after validation.",
			},
			[]string{"category"},
		),
		deliveriesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_created_total",
				Help:      "Total number of per-recipient delivery rows created.",
			},
			[]string{"category"},
		),
		deliveryTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_transitions_total",
				Help:      "Read and acknowledge calls grouped by action and whether the row changed.",
			},
			[]string{"action", "result"},
		),
		revisionsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revisions_recorded_total",
				Help:      "Field changes submitted to the revision log grouped by entity type and result.",
			},
			[]string{"entity_type", "result"},
		),
		intakeMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_messages_total",
				Help:      "Queue messages handled by the intake worker grouped by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		pollThrottled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_throttled_total",
				Help:      "Total number of summary polls rejected by the rate limiter.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsPublished,
		m.notificationPublishFailed,
		m.deliveriesCreated,
		m.deliveryTransitions,
		m.revisionsRecorded,
		m.intakeMessages,
		m.pollThrottled,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationPublished(category string, recipients int) {
	if m == nil {
		return
	}
	label := normalizeLabel(category)
	m.notificationsPublished.WithLabelValues(label).Inc()
	if recipients > 0 {
		m.deliveriesCreated.WithLabelValues(label).Add(float64(recipients))
	}
}

func (m *Metrics) IncNotificationPublishFailed(category string) {
	if m == nil {
		return
	}
	m.notificationPublishFailed.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncDeliveryTransition records a read or acknowledge call. changed=false
// means the row was already in the target state.
func (m *Metrics) IncDeliveryTransition(action string, changed bool) {
	if m == nil {
		return
	}
	result := "noop"
	if changed {
		result = "changed"
	}
	m.deliveryTransitions.WithLabelValues(normalizeLabel(action), result).Inc()
}

func (m *Metrics) IncRevision(entityType string, result string) {
	if m == nil {
		return
	}
	m.revisionsRecorded.WithLabelValues(normalizeLabel(entityType), normalizeLabel(result)).Inc()
}

func (m *Metrics) IncIntakeMessage(kind string, outcome string) {
	if m == nil {
		return
	}
	m.intakeMessages.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncPollThrottled() {
	if m == nil {
		return
	}
	m.pollThrottled.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
