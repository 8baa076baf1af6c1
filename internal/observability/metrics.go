// Package observability provides Prometheus metrics for tokenpulse,
// adapted from the teacher's namespaced promauto registration style
// onto this service's own components: Scheduler, Quote Sources, Token
// Validator, Pricing Engine and Broadcast Hub.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric exposed at /metrics.
type Metrics struct {
	// Scheduler metrics
	JobTicksTotal       *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	ActiveRepeatingJobs prometheus.Gauge
	MintsBannedTotal    prometheus.Counter

	// Quote source metrics
	QuoteFetchLatency *prometheus.HistogramVec
	QuoteFetchErrors  *prometheus.CounterVec
	QuoteCacheHits    *prometheus.CounterVec

	// Validator metrics
	ValidationOutcomes *prometheus.CounterVec

	// Pricing metrics
	PriceUpdatesTotal prometheus.Counter
	PriceUpdateErrors *prometheus.CounterVec

	// Broadcast Hub metrics
	ActiveConnections  prometheus.Gauge
	ActiveRooms        prometheus.Gauge
	SubscriptionEvents *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec

	// Persistent Store metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with every metric registered
// against namespace (default "tokenpulse").
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokenpulse"
	}

	return &Metrics{
		JobTicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_ticks_total",
			Help:      "Total number of scheduler job ticks by outcome",
		}, []string{"outcome"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of a single scheduler job invocation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		ActiveRepeatingJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_repeating_jobs",
			Help:      "Number of mints with an active repeating price job",
		}),
		MintsBannedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "mints_banned_total",
			Help:      "Total number of mints banned for invalidity",
		}),

		QuoteFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "fetch_latency_seconds",
			Help:      "Latency of quote source HTTP calls by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		QuoteFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "fetch_errors_total",
			Help:      "Total quote source fetch errors by source and kind",
		}, []string{"source", "kind"}),
		QuoteCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "cache_hits_total",
			Help:      "Total cache hits by source for quote lookups",
		}, []string{"source"}),

		ValidationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "outcomes_total",
			Help:      "Total mint validation outcomes",
		}, []string{"verdict"}),

		PriceUpdatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "updates_total",
			Help:      "Total successful price snapshot updates",
		}),
		PriceUpdateErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "update_errors_total",
			Help:      "Total price update failures by error kind",
		}, []string{"kind"}),

		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_connections",
			Help:      "Number of currently connected control-plane clients",
		}),
		ActiveRooms: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_rooms",
			Help:      "Number of mints with at least one subscriber",
		}),
		SubscriptionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscription_events_total",
			Help:      "Total subscribe/unsubscribe/error events by type",
		}, []string{"event"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"route", "status"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Persistent Store query duration by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_errors_total",
			Help:      "Total Persistent Store query errors by operation",
		}, []string{"operation"}),
	}
}

// DefaultMetrics is registered once at process start and shared across
// packages that don't hold their own reference.
var DefaultMetrics = NewMetrics("")

// RecordJobTick records a scheduler job outcome and its duration.
func RecordJobTick(outcome string, seconds float64) {
	DefaultMetrics.JobTicksTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordQuoteFetch records a quote source HTTP call's latency and, if
// kind is non-empty, counts an error of that kind.
func RecordQuoteFetch(source string, seconds float64, kind string) {
	DefaultMetrics.QuoteFetchLatency.WithLabelValues(source).Observe(seconds)
	if kind != "" {
		DefaultMetrics.QuoteFetchErrors.WithLabelValues(source, kind).Inc()
	}
}

// RecordValidation records a mint validation verdict ("valid" or
// "invalid").
func RecordValidation(verdict string) {
	DefaultMetrics.ValidationOutcomes.WithLabelValues(verdict).Inc()
}

// RecordPriceUpdate records a Pricing Engine updateMint outcome.
func RecordPriceUpdate(err error, kind string) {
	if err == nil {
		DefaultMetrics.PriceUpdatesTotal.Inc()
		return
	}
	DefaultMetrics.PriceUpdateErrors.WithLabelValues(kind).Inc()
}

// RecordSubscriptionEvent records a Broadcast Hub protocol event by
// name (subscription_success, unsubscription_success,
// subscription_status, subscription_error).
func RecordSubscriptionEvent(event string) {
	DefaultMetrics.SubscriptionEvents.WithLabelValues(event).Inc()
}

// RecordDBQuery records Persistent Store query latency and, on error,
// increments the error counter for operation.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
