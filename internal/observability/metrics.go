// Package observability owns the Prometheus collectors exported on /metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sectorboard",
		Subsystem: "mutations",
		Name:      "total",
		Help:      "Entity mutations by kind and outcome.",
	}, []string{"kind", "outcome"})
	realtimeNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sectorboard",
		Subsystem: "realtime",
		Name:      "notifications_total",
		Help:      "Change notifications received, by source and table.",
	}, []string{"source", "table"})
	realtimeRefetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sectorboard",
		Subsystem: "realtime",
		Name:      "refetches_total",
		Help:      "Debounced refetches issued to subscribers, by table.",
	}, []string{"table"})
	refetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sectorboard",
		Subsystem: "feed",
		Name:      "refetch_duration_seconds",
		Help:      "Latency of feed refetches against the store.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"feed"})
	searchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sectorboard",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Search requests by serving backend.",
	}, []string{"backend"})
	liveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sectorboard",
		Subsystem: "live",
		Name:      "sessions",
		Help:      "Open live WebSocket sessions.",
	})
)

func init() {
	prometheus.MustRegister(mutationsTotal, realtimeNotifications, realtimeRefetches, refetchDuration, searchRequests, liveSessions)
}

// RecordMutation counts one mutation attempt.
func RecordMutation(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mutationsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordNotification(source, table string) {
	realtimeNotifications.WithLabelValues(source, table).Inc()
}

func RecordRefetch(table string) {
	realtimeRefetches.WithLabelValues(table).Inc()
}

// ObserveRefetch records how long a feed refetch took.
func ObserveRefetch(feed string, started time.Time) {
	refetchDuration.WithLabelValues(feed).Observe(time.Since(started).Seconds())
}

func RecordSearch(backend string) {
	searchRequests.WithLabelValues(backend).Inc()
}

func LiveSessionOpened() { liveSessions.Inc() }

func LiveSessionClosed() { liveSessions.Dec() }
