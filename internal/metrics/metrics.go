// Package metrics collects Prometheus metrics and serves them on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/router"
)

const namespace = "estimator"

// Collector holds every metric of the application.
type Collector struct {
	storeOps      *prometheus.CounterVec
	storeLatency  *prometheus.HistogramVec
	navigations   *prometheus.CounterVec
	sessionEvents *prometheus.CounterVec
	feedClients   prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Document store operations by operation, collection and outcome.",
		}, []string{"operation", "collection", "outcome"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Document store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Completed navigations by final route and whether a guard redirected them.",
		}, []string{"route", "redirected"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Authentication provider notifications by event.",
		}, []string{"event"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "navigation_feed_clients",
			Help:      "Connected websocket navigation feed clients.",
		}),
	}

	reg.MustRegister(
		c.storeOps,
		c.storeLatency,
		c.navigations,
		c.sessionEvents,
		c.feedClients,
	)
	return c
}

// RecordStoreOp records one document store call.
func (c *Collector) RecordStoreOp(operation, collection string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.storeOps.WithLabelValues(operation, collection, outcome).Inc()
	c.storeLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveNavigation has the router.Router OnNavigate signature.
func (c *Collector) ObserveNavigation(nav router.Navigation) {
	c.navigations.WithLabelValues(string(nav.To.Name), strconv.FormatBool(nav.Redirected)).Inc()
}

// ObserveSession has the auth.Provider Subscribe signature.
func (c *Collector) ObserveSession(u *model.User) {
	event := "ended"
	if u != nil {
		event = "signed_in"
	}
	c.sessionEvents.WithLabelValues(event).Inc()
}

// SetFeedClients records the number of connected feed clients.
func (c *Collector) SetFeedClients(n int) {
	c.feedClients.Set(float64(n))
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
