// Package metrics exposes Prometheus counters for the fold, extraction and
// HTTP layers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/well-timeline/backend/internal/models"
)

const namespace = "well_timeline"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	folds              prometheus.Counter
	rejectedItems      *prometheus.CounterVec
	closedPerforations prometheus.Counter
	extractDuration    prometheus.Histogram
	extractErrors      prometheus.Counter
	activeSessions     prometheus.Gauge
}

// New registers the collectors on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		folds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interventions_applied_total",
			Help:      "Interventions folded into a well state.",
		}),
		rejectedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_items_total",
			Help:      "Extracted items the fold could not place, by kind and reason.",
		}, []string{"kind", "reason"}),
		closedPerforations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perforations_closed_total",
			Help:      "Perforations closed by squeezes or cement plugs.",
		}),
		extractDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Histogram of extraction call durations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		extractErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors_total",
			Help:      "Extractions that failed after all retries.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Analysis sessions held in memory.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.folds,
		m.rejectedItems,
		m.closedPerforations,
		m.extractDuration,
		m.extractErrors,
		m.activeSessions,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFold records the outcome of one fold.
func (m *Metrics) ObserveFold(report models.FoldReport) {
	if m == nil {
		return
	}
	m.folds.Inc()
	m.closedPerforations.Add(float64(len(report.ClosedPerforations)))
	for _, r := range report.Rejected {
		m.rejectedItems.WithLabelValues(r.Kind, r.Reason).Inc()
	}
}

// ObserveExtraction records an extraction call.
func (m *Metrics) ObserveExtraction(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.extractDuration.Observe(d.Seconds())
	if err != nil {
		m.extractErrors.Inc()
	}
}

// SetActiveSessions sets the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// statusCoder is implemented by API errors that carry their HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Middleware counts requests by route template and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				switch e := err.(type) {
				case *echo.HTTPError:
					status = e.Code
				case statusCoder:
					status = e.StatusCode()
				default:
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
