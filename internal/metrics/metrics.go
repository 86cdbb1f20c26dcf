// Package metrics defines the Prometheus instrumentation for the HTTP
// services and the workers.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortlinks_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_redirects_total",
			Help: "Total number of alias resolutions",
		},
		[]string{"outcome"}, // "hit" or "miss"
	)

	linksCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_links_created_total",
			Help: "Total number of links created",
		},
	)

	linksHeldTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_links_held_total",
			Help: "Total number of link creations diverted to security review",
		},
	)

	eventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_events_consumed_total",
			Help: "Total number of queue events consumed by the workers",
		},
		[]string{"queue", "result"}, // result is "ok" or "failed"
	)
)

// FiberMiddleware records request count and latency per route template.
// The route template keeps alias paths from exploding label cardinality.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(c.Method(), route, status).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func RecordRedirect(hit bool) {
	outcome := "hit"
	if !hit {
		outcome = "miss"
	}
	redirectsTotal.WithLabelValues(outcome).Inc()
}

func RecordLinkCreated() {
	linksCreatedTotal.Inc()
}

func RecordLinkHeld() {
	linksHeldTotal.Inc()
}

func RecordEventConsumed(queue string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	eventsConsumedTotal.WithLabelValues(queue, result).Inc()
}
