// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_api_requests_total",
			Help: "Number of API requests",
		},
		[]string{"method", "path", "status", "caller"},
	)
	APIInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdb_api_requests_in_flight",
			Help: "API requests currently being served",
		},
	)
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdb_api_latency_seconds",
			Help:    "API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	ListQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_list_queries_total",
			Help: "List queries executed",
		},
		[]string{"list", "suppressed"},
	)
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdb_list_query_seconds",
			Help:    "Latency of list queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	DroppedClauses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_dropped_clauses_total",
			Help: "Filter or sort clauses dropped before SQL assembly",
		},
		[]string{"reason"},
	)
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdb_field_cache_hits_total",
			Help: "Field definition cache hits",
		},
	)
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdb_field_cache_misses_total",
			Help: "Field definition cache misses",
		},
	)
	Fields = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdb_fields_total",
			Help: "Number of loaded field definitions",
		},
	)
	RecordWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_record_writes_total",
			Help: "Record writes by mode and outcome",
		},
		[]string{"mode", "status"},
	)
	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_validation_failures_total",
			Help: "Field validation failures",
		},
		[]string{"field", "rule"},
	)
	SessionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_session_ops_total",
			Help: "Saved list query session operations",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequests,
		APIInFlight,
		APILatency,
		ListQueries,
		QueryLatency,
		DroppedClauses,
		CacheHits,
		CacheMisses,
		Fields,
		RecordWrites,
		ValidationFailures,
		SessionOps,
	)
}
