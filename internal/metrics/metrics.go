// Package metrics exposes Prometheus instrumentation for registry lookups,
// scheduled runs and notification delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "domain_watch"

// Result label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultNotFound = "not_found"
	ResultSkipped  = "skipped"
)

// Metrics provides observability for the bot. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Registry lookups by caller (refresh, watch, info) and result
	Lookups *prometheus.CounterVec

	// Lookup latency by caller
	LookupLatency *prometheus.HistogramVec

	// Per-domain refresh outcomes
	RefreshedDomains *prometheus.CounterVec

	// Notification deliveries by result
	Notifications *prometheus.CounterVec

	// Scheduled job executions by job and result
	JobRuns *prometheus.CounterVec

	// Scheduled job duration by job
	JobDuration *prometheus.HistogramVec
}

// New registers all metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_lookups_total",
			Help:      "Total registry lookups by caller and result",
		}, []string{"source", "result"}),

		LookupLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_lookup_duration_seconds",
			Help:      "Duration of registry lookups by caller",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),

		RefreshedDomains: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_domains_total",
			Help:      "Domains processed by the refresh run by result",
		}, []string{"result"}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Expiry notifications handed to the messenger by result",
		}, []string{"result"}),

		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job and result",
		}, []string{"job", "result"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job executions",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
	}
}

// ObserveLookup records one registry lookup.
func (m *Metrics) ObserveLookup(source, result string, d time.Duration) {
	if m != nil {
		m.Lookups.WithLabelValues(source, result).Inc()
		m.LookupLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncrementRefreshed records the outcome of refreshing one domain.
func (m *Metrics) IncrementRefreshed(result string) {
	if m != nil {
		m.RefreshedDomains.WithLabelValues(result).Inc()
	}
}

// IncrementNotification records one notification delivery attempt.
func (m *Metrics) IncrementNotification(result string) {
	if m != nil {
		m.Notifications.WithLabelValues(result).Inc()
	}
}

// ObserveJob records one scheduled job execution.
func (m *Metrics) ObserveJob(job, result string, d time.Duration) {
	if m != nil {
		m.JobRuns.WithLabelValues(job, result).Inc()
		m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}
