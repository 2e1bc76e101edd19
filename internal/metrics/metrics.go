// Package metrics holds the Prometheus collectors for the HTTP surface and
// the booking engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "park",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "park",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "park",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	bookingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "park",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Reservation and transfer operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	seatsReserved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "park",
			Subsystem: "booking",
			Name:      "seats_reserved_total",
			Help:      "Seats taken from the daily capacity ledger.",
		},
	)

	seatsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "park",
			Subsystem: "booking",
			Name:      "seats_released_total",
			Help:      "Seats returned to the daily capacity ledger.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bookingOps,
		seatsReserved,
		seatsReleased,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.  Using
// the route template rather than the raw path keeps label cardinality flat.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			err := next(c)
			if err != nil {
				// Let echo render the error so the recorded status is final.
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordOperation counts one engine operation.  outcome is "ok" or the
// error class that stopped it.
func RecordOperation(operation, outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	bookingOps.WithLabelValues(operation, outcome).Inc()
}

// RecordSeats tracks ledger movement; positive n reserves, negative releases.
func RecordSeats(n int) {
	switch {
	case n > 0:
		seatsReserved.Add(float64(n))
	case n < 0:
		seatsReleased.Add(float64(-n))
	}
}
