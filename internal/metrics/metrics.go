// Package metrics exposes Prometheus collectors for the audit service.
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
	jobsTotal                  *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	creditsConsumedTotal       prometheus.Counter
	creditsDeniedTotal         prometheus.Counter
	staleJobsRequeuedTotal     prometheus.Counter
	staleJobsFailedTotal       prometheus.Counter
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seoscope_jobs_total",
				Help: "Total number of jobs settled, labeled by status.",
			},
			[]string{"status"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seoscope_fetches_total",
				Help: "Total number of page fetches, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seoscope_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		creditsConsumedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seoscope_credits_consumed_total",
				Help: "Total credits successfully consumed.",
			},
		)

		creditsDeniedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seoscope_credits_denied_total",
				Help: "Total consume attempts rejected for insufficient balance.",
			},
		)

		staleJobsRequeuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seoscope_stale_jobs_requeued_total",
				Help: "Total stuck processing jobs returned to the queue by the sweeper.",
			},
		)

		staleJobsFailedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seoscope_stale_jobs_failed_total",
				Help: "Total stuck processing jobs failed by the sweeper.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seoscope_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given settle status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(mode, outcome string, duration time.Duration) {
	fetchesTotal.WithLabelValues(mode, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveConsume records the outcome of a credit consume attempt.
func ObserveConsume(ok bool, amount int) {
	if ok {
		creditsConsumedTotal.Add(float64(amount))
		return
	}
	creditsDeniedTotal.Inc()
}

// ObserveSweep records one sweeper pass.
func ObserveSweep(requeued, failed int) {
	staleJobsRequeuedTotal.Add(float64(requeued))
	staleJobsFailedTotal.Add(float64(failed))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
