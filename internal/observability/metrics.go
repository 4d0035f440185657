// Package observability registers the service's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audit_service",
		Subsystem: "recorder",
		Name:      "events_persisted_total",
		Help:      "Number of audit events written to the store, labeled by event type.",
	}, []string{"event_type"})

	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audit_service",
		Subsystem: "recorder",
		Name:      "events_dropped_total",
		Help:      "Number of audit events dropped by the bounded queue overflow policy.",
	})

	eventsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audit_service",
		Subsystem: "recorder",
		Name:      "events_rejected_total",
		Help:      "Number of audit events rejected by validation at the recorder boundary.",
	})

	eventWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audit_service",
		Subsystem: "recorder",
		Name:      "event_write_failures_total",
		Help:      "Number of audit event store writes that failed and were swallowed.",
	})

	queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "audit_service",
		Subsystem: "query",
		Name:      "trail_query_duration_seconds",
		Help:      "Time spent serving audit-trail queries.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	reportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "audit_service",
		Subsystem: "report",
		Name:      "weekly_build_duration_seconds",
		Help:      "Time spent building weekly member reports.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		eventsPersisted,
		eventsDropped,
		eventsRejected,
		eventWriteFailures,
		queryDuration,
		reportDuration,
	)
}

// RecordEventPersisted counts a successful store write.
func RecordEventPersisted(eventType string) {
	eventsPersisted.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts an overflow drop.
func RecordEventDropped() {
	eventsDropped.Inc()
}

// RecordEventRejected counts a validation rejection.
func RecordEventRejected() {
	eventsRejected.Inc()
}

// RecordEventWriteFailure counts a swallowed store failure.
func RecordEventWriteFailure() {
	eventWriteFailures.Inc()
}

// ObserveQueryDuration records one audit-trail query duration in seconds.
func ObserveQueryDuration(seconds float64) {
	queryDuration.Observe(seconds)
}

// ObserveReportDuration records one weekly report build duration in seconds.
func ObserveReportDuration(seconds float64) {
	reportDuration.Observe(seconds)
}
