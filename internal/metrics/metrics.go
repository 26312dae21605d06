// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthguard_analyses_total",
			Help: "Total number of completed analyses by modality and verdict",
		},
		[]string{"modality", "verdict"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthguard_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"modality"},
	)

	FusedProbability = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthguard_fused_probability",
			Help:    "Distribution of fused probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"modality"},
	)

	// Oracle metrics
	OracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthguard_oracle_duration_seconds",
			Help:    "Neural oracle invocation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"oracle"},
	)

	OracleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthguard_oracle_errors_total",
			Help: "Total number of failed oracle invocations",
		},
		[]string{"oracle"},
	)

	OracleBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "truthguard_oracle_circuit_breaker_state",
			Help: "Remote oracle circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"oracle"},
	)

	OracleBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthguard_oracle_circuit_breaker_transitions_total",
			Help: "Remote oracle circuit breaker state transitions",
		},
		[]string{"oracle", "from", "to"},
	)

	// Video metrics
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthguard_video_frames_total",
			Help: "Video frames by outcome (scored, skipped, timed_out)",
		},
		[]string{"outcome"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthguard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "truthguard_http_in_flight_requests",
			Help: "Current number of in-flight analysis requests",
		},
	)

	HTTPRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthguard_http_rejections_total",
			Help: "Requests rejected before analysis (rate_limit, in_flight, body_size, invalid)",
		},
		[]string{"reason"},
	)
)

// RecordAnalysis records one finished analysis.
func RecordAnalysis(modality, verdict string, probability float64, duration time.Duration) {
	AnalysesTotal.WithLabelValues(modality, verdict).Inc()
	AnalysisDuration.WithLabelValues(modality).Observe(duration.Seconds())
	FusedProbability.WithLabelValues(modality).Observe(probability)
}

// RecordOracle records one oracle call.
func RecordOracle(oracle string, duration time.Duration, err error) {
	OracleDuration.WithLabelValues(oracle).Observe(duration.Seconds())
	if err != nil {
		OracleErrors.WithLabelValues(oracle).Inc()
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(oracle, from, to string, state float64) {
	OracleBreakerState.WithLabelValues(oracle).Set(state)
	OracleBreakerTransitions.WithLabelValues(oracle, from, to).Inc()
}

// RecordFrames adds frame outcome counts for one video.
func RecordFrames(scored, skipped, timedOut int) {
	FramesTotal.WithLabelValues("scored").Add(float64(scored))
	FramesTotal.WithLabelValues("skipped").Add(float64(skipped))
	FramesTotal.WithLabelValues("timed_out").Add(float64(timedOut))
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRejection counts a request refused before analysis.
func RecordRejection(reason string) {
	HTTPRejections.WithLabelValues(reason).Inc()
}

// TrackInFlight increments or decrements the in-flight gauge.
func TrackInFlight(start bool) {
	if start {
		HTTPInFlight.Inc()
		return
	}
	HTTPInFlight.Dec()
}
