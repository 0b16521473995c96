package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_ingest_total",
			Help: "Total ingestion requests by result.",
		},
		[]string{"result"}, // accepted, auth_failed, malformed, not_found, store_error, queue_error
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total delivery outcomes by status.",
		},
		[]string{"status"}, // succeeded, retrying, failed
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_delivery_duration_seconds",
			Help:    "Outbound webhook request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_retries_total",
			Help: "Total delivery retries by reason.",
		},
		[]string{"reason"}, // http_5xx, http_429, timeout, connection_refused, dns_error, network, other
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_subscription_cache_total",
			Help: "Subscription cache lookups by result.",
		},
		[]string{"result"}, // hit, miss
	)

	SweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_swept_total",
			Help: "Rows purged by the cleanup sweeper.",
		},
		[]string{"kind"}, // attempts, deliveries
	)

	RecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_recovered_total",
			Help: "Stale deliveries re-enqueued by the recovery sweep.",
		},
	)

	WorkerBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookline_worker_backlog",
			Help: "Depth of the deliveries channel as seen by the worker.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		IngestTotal,
		DeliveriesTotal,
		DeliveryDuration,
		RetriesTotal,
		CacheTotal,
		SweptTotal,
		RecoveredTotal,
		WorkerBacklog,
	)
}

// RecordIngest increments the ingestion counter for the given result
func RecordIngest(result string) {
	IngestTotal.WithLabelValues(result).Inc()
}

// RecordDelivery records a delivery outcome and its latency
func RecordDelivery(status string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	if latency > 0 {
		DeliveryDuration.Observe(latency.Seconds())
	}
}

// RecordRetry increments the retry counter for the given reason
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordCache records a cache hit or miss
func RecordCache(hit bool) {
	if hit {
		CacheTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheTotal.WithLabelValues("miss").Inc()
}

// RecordSwept adds purged row counts for the given kind
func RecordSwept(kind string, n int64) {
	if n > 0 {
		SweptTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordRecovered adds re-enqueued delivery counts
func RecordRecovered(n int) {
	if n > 0 {
		RecoveredTotal.Add(float64(n))
	}
}

// UpdateWorkerBacklog sets the worker backlog gauge
func UpdateWorkerBacklog(depth float64) {
	WorkerBacklog.Set(depth)
}
