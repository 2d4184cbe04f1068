// Package metrics provides Prometheus metrics for monitoring the sync cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"},
	)
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_cycle_duration_seconds",
			Help:    "Sync cycle duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
	RecordsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_records_fetched_total",
			Help: "Total number of task records returned by the tracking API",
		},
	)
	RecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_records_skipped_total",
			Help: "Total number of task records dropped for having no project",
		},
	)
	RowsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_rows_inserted_total",
			Help: "Total number of snapshot rows appended",
		},
	)
	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracksync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync cycle",
		},
	)
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_api_requests_total",
			Help: "Total number of requests sent to the tracking API",
		},
		[]string{"status"},
	)
	APIRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracksync_api_request_duration_seconds",
			Help:    "Tracking API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_http_requests_total",
			Help: "Total number of HTTP requests served by the status endpoint",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_http_request_duration_seconds",
			Help:    "Status endpoint request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordCycle(outcome string, duration time.Duration, fetched, skipped, inserted int) {
	CyclesTotal.WithLabelValues(outcome).Inc()
	CycleDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	RecordsFetched.Add(float64(fetched))
	RecordsSkipped.Add(float64(skipped))
	RowsInserted.Add(float64(inserted))
}

func RecordLastSuccess(at time.Time) {
	LastSuccess.Set(float64(at.Unix()))
}

func RecordAPIRequest(status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(status).Inc()
	APIRequestDuration.Observe(duration.Seconds())
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
