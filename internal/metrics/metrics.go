// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncUnitsTotal             *prometheus.CounterVec
	syncUnitRetriesTotal       *prometheus.CounterVec
	syncRunsTotal              *prometheus.CounterVec
	entitiesMergedTotal        *prometheus.CounterVec
	portalFetchDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		syncUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_units_total",
				Help: "Crawl units processed, labeled by stage and outcome.",
			},
			[]string{"stage", "status"},
		)

		syncUnitRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_unit_retries_total",
				Help: "Crawl unit retry attempts, labeled by stage.",
			},
			[]string{"stage"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_runs_total",
				Help: "Sync runs, labeled by stage and outcome.",
			},
			[]string{"stage", "status"},
		)

		entitiesMergedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entities_merged_total",
				Help: "Entities created or updated by reconciliation, labeled by kind.",
			},
			[]string{"entity"},
		)

		portalFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_fetch_duration_seconds",
				Help:    "Histogram of portal page fetch latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_active_workers",
				Help: "Workers currently processing a crawl unit.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the http.Handler exposing the collected metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit counts one finished crawl unit.
func ObserveUnit(stage, status string) {
	if syncUnitsTotal == nil {
		return
	}
	syncUnitsTotal.WithLabelValues(stage, status).Inc()
}

// ObserveUnitRetry counts one retried attempt.
func ObserveUnitRetry(stage string) {
	if syncUnitRetriesTotal == nil {
		return
	}
	syncUnitRetriesTotal.WithLabelValues(stage).Inc()
}

// ObserveRun counts one finished sync run.
func ObserveRun(stage, status string) {
	if syncRunsTotal == nil {
		return
	}
	syncRunsTotal.WithLabelValues(stage, status).Inc()
}

// ObserveMerge counts one merged entity.
func ObserveMerge(entity string) {
	if entitiesMergedTotal == nil {
		return
	}
	entitiesMergedTotal.WithLabelValues(entity).Inc()
}

// ObserveFetch records one portal page fetch.
func ObserveFetch(status string, duration time.Duration) {
	if portalFetchDurationSeconds == nil {
		return
	}
	portalFetchDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
