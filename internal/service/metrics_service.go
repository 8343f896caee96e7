package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
)

// MetricsSnapshot is a lightweight view of the collected metrics for API consumption.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	SyncRuns                 uint64    `json:"sync_runs"`
	SyncRecordsFailed        uint64    `json:"sync_records_failed"`
	SimulatedFallbacks       uint64    `json:"simulated_fallbacks"`
	SagaWarnings             uint64    `json:"saga_warnings"`
	LMSOffline               bool      `json:"lms_offline"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	syncRecords     *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	sagaSteps       *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	lmsOffline      prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	syncRunCount         uint64
	syncFailedCount      uint64
	fallbackCount        uint64
	sagaWarningCount     uint64
	offline              uint32
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	syncRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_sync_records_total",
		Help: "Records visited by the reconciler, by entity and outcome",
	}, []string{"entity", "outcome"})

	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lms_sync_duration_seconds",
		Help:    "Duration of synchronization runs",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"entity", "status"})

	sagaSteps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_saga_steps_total",
		Help: "Enrollment saga step results",
	}, []string{"step", "state"})

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_simulated_fallbacks_total",
		Help: "Reads answered with simulated data",
	}, []string{"operation", "reason"})

	lmsOffline := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lms_offline",
		Help: "1 when the last connectivity probe found the LMS unreachable",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, syncRecords, syncDuration, sagaSteps, fallbacks, lmsOffline, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		syncRecords:     syncRecords,
		syncDuration:    syncDuration,
		sagaSteps:       sagaSteps,
		fallbacks:       fallbacks,
		lmsOffline:      lmsOffline,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSync records the counters of one finished synchronization.
func (m *MetricsService) RecordSync(result *models.SyncResult, status models.SyncRunStatus, duration time.Duration) {
	if m == nil || result == nil {
		return
	}
	entity := string(result.EntityType)
	m.syncRecords.WithLabelValues(entity, "imported").Add(float64(result.Imported))
	m.syncRecords.WithLabelValues(entity, "updated").Add(float64(result.Updated))
	m.syncRecords.WithLabelValues(entity, "failed").Add(float64(result.Failed))
	m.syncDuration.WithLabelValues(entity, string(status)).Observe(duration.Seconds())
	atomic.AddUint64(&m.syncRunCount, 1)
	atomic.AddUint64(&m.syncFailedCount, uint64(result.Failed))
}

// RecordSagaStep counts one enrollment saga step result.
func (m *MetricsService) RecordSagaStep(step models.SagaStep, state models.StepState) {
	if m == nil {
		return
	}
	m.sagaSteps.WithLabelValues(string(step), string(state)).Inc()
	if state == models.StepFailed || state == models.StepSimulated {
		atomic.AddUint64(&m.sagaWarningCount, 1)
	}
}

// RecordFallback counts a read served from the simulated dataset.
func (m *MetricsService) RecordFallback(operation, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(operation, reason).Inc()
	atomic.AddUint64(&m.fallbackCount, 1)
}

// SetLMSOffline publishes the last probe verdict.
func (m *MetricsService) SetLMSOffline(offline bool) {
	if m == nil {
		return
	}
	if offline {
		m.lmsOffline.Set(1)
		atomic.StoreUint32(&m.offline, 1)
		return
	}
	m.lmsOffline.Set(0)
	atomic.StoreUint32(&m.offline, 0)
}

// Snapshot returns aggregated metrics suitable for the status endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		SyncRuns:                 atomic.LoadUint64(&m.syncRunCount),
		SyncRecordsFailed:        atomic.LoadUint64(&m.syncFailedCount),
		SimulatedFallbacks:       atomic.LoadUint64(&m.fallbackCount),
		SagaWarnings:             atomic.LoadUint64(&m.sagaWarningCount),
		LMSOffline:               atomic.LoadUint32(&m.offline) == 1,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
