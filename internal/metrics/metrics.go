// Package metrics holds the Prometheus collectors for the query pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankql_turns_total",
			Help: "Total number of pipeline turns by outcome status.",
		},
		[]string{"status"},
	)
	turnDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bankql_turn_duration_seconds",
			Help:    "End to end pipeline turn latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)
	correctionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankql_corrections_total",
			Help: "Total number of corrector rule applications by rule.",
		},
		[]string{"rule"},
	)
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankql_validations_total",
			Help: "Total number of validations by terminal stage.",
		},
		[]string{"stage"},
	)
	fallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bankql_fallbacks_total",
			Help: "Total number of turns served from the fallback catalog.",
		},
	)
	generationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankql_generation_errors_total",
			Help: "Total number of SQL generation failures by provider and kind.",
		},
		[]string{"provider", "kind"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bankql_query_duration_seconds",
			Help:    "SQL execution latency against the banking database.",
			Buckets: prometheus.DefBuckets,
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankql_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bankql_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		turnDurationSeconds,
		correctionsTotal,
		validationsTotal,
		fallbacksTotal,
		generationErrorsTotal,
		queryDurationSeconds,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

func ObserveTurn(status string, d time.Duration) {
	turnsTotal.WithLabelValues(status).Inc()
	turnDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// IncrementCorrections counts each applied rule once.
func IncrementCorrections(rules []string) {
	for _, r := range rules {
		correctionsTotal.WithLabelValues(r).Inc()
	}
}

func IncrementValidation(stage string) {
	validationsTotal.WithLabelValues(stage).Inc()
}

func IncrementFallback() {
	fallbacksTotal.Inc()
}

func IncrementGenerationError(provider, kind string) {
	generationErrorsTotal.WithLabelValues(provider, kind).Inc()
}

func ObserveQuery(d time.Duration) {
	queryDurationSeconds.Observe(d.Seconds())
}

func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, code).Observe(d.Seconds())
}
