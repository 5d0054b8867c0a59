// Package metrics provides Prometheus metrics for the reminder engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	AlertsScheduled   prometheus.Counter
	AlertsFired       prometheus.Counter
	AlertsFailed      prometheus.Counter
	AlertsCancelled   prometheus.Counter
	ReconcileRuns     prometheus.Counter
	ReconcileFailures prometheus.Counter
	ReconcileDuration prometheus.Histogram
	ActiveAlerts      prometheus.Gauge
	DosesRecorded     *prometheus.CounterVec
	LookupRequests    prometheus.Counter
	LookupCacheHits   prometheus.Counter
	LookupFailures    prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AlertsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_scheduled_total",
			Help: "Total platform alerts scheduled",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Total alerts delivered to sinks",
		}),
		AlertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_failed_total",
			Help: "Total alerts that failed to schedule",
		}),
		AlertsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_cancelled_total",
			Help: "Total alerts cancelled",
		}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Total regimen reconciliation runs",
		}),
		ReconcileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_failures_total",
			Help: "Total failed reconciliation runs",
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Regimen reconciliation duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alerts_active",
			Help: "Currently registered platform alerts",
		}),
		DosesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doses_recorded_total",
			Help: "Dose status changes by resulting status",
		}, []string{"status"}),
		LookupRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookup_requests_total",
			Help: "Total drug registry lookups",
		}),
		LookupCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookup_cache_hits_total",
			Help: "Drug registry lookups served from cache",
		}),
		LookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookup_failures_total",
			Help: "Drug registry lookups that failed",
		}),
	}

	m.registry.MustRegister(
		m.AlertsScheduled,
		m.AlertsFired,
		m.AlertsFailed,
		m.AlertsCancelled,
		m.ReconcileRuns,
		m.ReconcileFailures,
		m.ReconcileDuration,
		m.ActiveAlerts,
		m.DosesRecorded,
		m.LookupRequests,
		m.LookupCacheHits,
		m.LookupFailures,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
