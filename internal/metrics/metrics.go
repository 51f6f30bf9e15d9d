// Package metrics holds the operational Prometheus metrics of the dispatcher
// and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_sweeps_total",
			Help: "Scheduler sweeps by result",
		},
		[]string{"result"},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_claims_total",
			Help: "Due post claims by result (claimed, conflict, error)",
		},
		[]string{"result"},
	)

	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_dispatch_attempts_total",
			Help: "Publisher submit attempts by provider and outcome kind",
		},
		[]string{"provider", "kind"},
	)

	DispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_dispatch_outcomes_total",
			Help: "Final dispatch outcome per post",
		},
		[]string{"provider", "status"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autopost_dispatch_duration_seconds",
			Help:    "Time from claim to final status, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	DispatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autopost_dispatch_in_flight",
			Help: "Dispatches currently running",
		},
	)

	StaleReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autopost_stale_dispatch_reaped_total",
			Help: "Queued posts failed by the stale dispatch reaper",
		},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_token_refreshes_total",
			Help: "Account token refreshes by provider and result",
		},
		[]string{"provider", "result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopost_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autopost_http_request_duration_seconds",
			Help:    "HTTP request duration by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler serves the default registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Middleware records request count and duration. The route pattern is used
// as label so post ids do not blow up cardinality.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
