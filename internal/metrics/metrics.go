// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestTotal counts HTTP requests by method, route pattern, and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workq_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// QueryExecutions counts query engine runs by outcome
	// (ok, validation, authorization, execution).
	QueryExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_query_executions_total",
			Help: "Total number of work package query executions",
		},
		[]string{"outcome"},
	)
	// QueryDuration is the wall time of successful query executions.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workq_query_duration_seconds",
			Help:    "Work package query execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"grouped"},
	)
	// EventsPublished counts events handed to the publisher by topic.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_events_published_total",
			Help: "Total number of published events",
		},
		[]string{"topic", "status"},
	)
	// ExportRuns counts saved-query export attempts per destination.
	ExportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workq_export_runs_total",
			Help: "Total number of saved query export runs",
		},
		[]string{"destination", "status"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
