// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iclr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iclr_db_query_duration_seconds",
			Help:    "Duration of repository queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iclr_db_query_errors_total",
			Help: "Total number of failed repository queries",
		},
		[]string{"operation", "table"},
	)

	// Predictions
	PredictionsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iclr_predictions_stored_total",
			Help: "Predictions written, by year, label and rebuttal flag",
		},
		[]string{"year", "label", "rebuttal"},
	)

	PredictionsSuperseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iclr_predictions_superseded_total",
			Help: "Prior prediction rows purged when a key was re-labeled",
		},
		[]string{"year"},
	)

	// Labeler
	LabelerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iclr_labeler_requests_total",
			Help: "Calls to the external labeler by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	LabelerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iclr_labeler_request_duration_seconds",
			Help:    "Latency of external labeler calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	LabelerBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iclr_labeler_breaker_open",
			Help: "1 while the labeler circuit breaker is open, 0 otherwise",
		},
		[]string{"provider"},
	)

	// Year selection
	YearSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iclr_year_switches_total",
			Help: "Global year selections by target year",
		},
		[]string{"year"},
	)
)

// RecordDBQuery records the duration and outcome of one repository query.
func RecordDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordLabelerCall records one labeler call.
func RecordLabelerCall(provider string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	LabelerRequests.WithLabelValues(provider, outcome).Inc()
	LabelerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordPredictionStored counts a stored prediction and the rows it replaced.
func RecordPredictionStored(year, label string, rebuttal int, superseded int64) {
	PredictionsStored.WithLabelValues(year, label, strconv.Itoa(rebuttal)).Inc()
	if superseded > 0 {
		PredictionsSuperseded.WithLabelValues(year).Add(float64(superseded))
	}
}
