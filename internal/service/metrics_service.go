package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	lockTotal       *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	syncRuns        *prometheus.CounterVec
	syncUpdated     prometheus.Counter
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	lockTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lock_acquisitions_total",
		Help: "Distributed lock acquisition outcomes",
	}, []string{"outcome"})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "count_sync_duration_seconds",
		Help:    "Duration of registration-count reconciliation passes",
		Buckets: prometheus.DefBuckets,
	})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "count_sync_runs_total",
		Help: "Registration-count reconciliation pass results",
	}, []string{"result"})

	syncUpdated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "count_sync_items_updated_total",
		Help: "Total catalog items whose cached count was rewritten",
	})

	registry.MustRegister(requestDuration, requestTotal, lockTotal, syncDuration, syncRuns, syncUpdated)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		lockTotal:       lockTotal,
		syncDuration:    syncDuration,
		syncRuns:        syncRuns,
		syncUpdated:     syncUpdated,
	}
}

// Handler exposes the /metrics endpoint handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// ObserveHTTPRequest records one handled request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveLockAcquisition records a lock outcome ("acquired" or "conflict").
func (m *MetricsService) ObserveLockAcquisition(outcome string) {
	if m == nil {
		return
	}
	m.lockTotal.WithLabelValues(outcome).Inc()
}

// ObserveCountSync records one reconciliation pass.
func (m *MetricsService) ObserveCountSync(duration time.Duration, updated int, err error) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(duration.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.syncRuns.WithLabelValues(result).Inc()
	m.syncUpdated.Add(float64(updated))
}
