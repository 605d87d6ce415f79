package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the tournament pipelines.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	pairingDuration     *prometheus.HistogramVec
	pairingOutcomes     *prometheus.CounterVec
	roundTransitions    *prometheus.CounterVec
	concurrencyConflict *prometheus.CounterVec
	resultsApplied      prometheus.Counter
	resultValidations   *prometheus.CounterVec
	standingsDuration   prometheus.Histogram
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by outcome",
		}, []string{"outcome"}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		pairingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swiss_pairing_duration_seconds",
			Help:    "Time spent generating a pairing proposal",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method"}),
		pairingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiss_pairings_total",
			Help: "Pairing generations and confirmations by outcome",
		}, []string{"stage", "outcome"}),
		roundTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiss_round_transitions_total",
			Help: "Round status changes by target status",
		}, []string{"status"}),
		concurrencyConflict: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiss_concurrency_conflicts_total",
			Help: "Check-and-set writes rejected because the stored state moved",
		}, []string{"operation"}),
		resultsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swiss_results_applied_total",
			Help: "Game results written by batch updates",
		}),
		resultValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiss_result_validations_total",
			Help: "Result validations by verdict",
		}, []string{"verdict"}),
		standingsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swiss_standings_compute_seconds",
			Help:    "Time spent computing standings on a cache miss",
			Buckets: prometheus.DefBuckets,
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheLookups,
		m.dbQueryDuration,
		m.pairingDuration, m.pairingOutcomes, m.roundTransitions, m.concurrencyConflict,
		m.resultsApplied, m.resultValidations, m.standingsDuration,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup and its latency.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObservePairing records a generation attempt. outcome is "ok" or "infeasible".
func (m *MetricsService) ObservePairing(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.pairingDuration.WithLabelValues(method).Observe(duration.Seconds())
	m.pairingOutcomes.WithLabelValues("generate", outcome).Inc()
}

// IncPairingConfirmed counts confirmations by outcome.
func (m *MetricsService) IncPairingConfirmed(outcome string) {
	if m == nil {
		return
	}
	m.pairingOutcomes.WithLabelValues("confirm", outcome).Inc()
}

// IncRoundTransition counts round status changes.
func (m *MetricsService) IncRoundTransition(status string) {
	if m == nil {
		return
	}
	m.roundTransitions.WithLabelValues(status).Inc()
}

// IncConcurrencyConflict counts rejected check-and-set writes.
func (m *MetricsService) IncConcurrencyConflict(operation string) {
	if m == nil {
		return
	}
	m.concurrencyConflict.WithLabelValues(operation).Inc()
}

// AddResultsApplied counts games changed by a batch.
func (m *MetricsService) AddResultsApplied(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.resultsApplied.Add(float64(n))
}

// IncResultValidation counts validation verdicts.
func (m *MetricsService) IncResultValidation(valid bool) {
	if m == nil {
		return
	}
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	m.resultValidations.WithLabelValues(verdict).Inc()
}

// ObserveStandings records a standings computation.
func (m *MetricsService) ObserveStandings(duration time.Duration) {
	if m == nil {
		return
	}
	m.standingsDuration.Observe(duration.Seconds())
}
