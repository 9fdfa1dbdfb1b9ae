package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slotwise/timetable-merge-api/internal/models"
	"github.com/slotwise/timetable-merge-api/internal/timetable"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// resolution engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	resolveDuration prometheus.Observer
	resolveRuns     prometheus.Counter
	rowsProcessed   prometheus.Counter
	rowsDropped     prometheus.Counter
	rowsRelocated   prometheus.Counter
	rowsExhausted   prometheus.Counter
	conflictsFound  prometheus.Counter
	exportJobs      *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
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

	resolveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolve_duration_seconds",
		Help:    "Duration of resolution runs",
		Buckets: prometheus.DefBuckets,
	})

	resolveRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolve_runs_total",
		Help: "Total resolution runs executed",
	})

	rowsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolve_rows_total",
		Help: "Total rows submitted for resolution",
	})

	rowsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolve_rows_dropped_total",
		Help: "Rows rejected by the validity gate",
	})

	rowsRelocated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolve_rows_relocated_total",
		Help: "Rows moved to an alternative slot",
	})

	rowsExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolve_relocations_exhausted_total",
		Help: "Rows kept in their original slot after a full grid search",
	})

	conflictsFound := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resolve_conflicts_total",
		Help: "Unavoidable double-bookings reported across runs",
	})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Export jobs by terminal status",
	}, []string{"status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, resolveDuration, resolveRuns,
		rowsProcessed, rowsDropped, rowsRelocated, rowsExhausted, conflictsFound,
		exportJobs, cacheLatency, cacheHits, cacheMisses, cacheHitRatio, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		resolveDuration: resolveDuration,
		resolveRuns:     resolveRuns,
		rowsProcessed:   rowsProcessed,
		rowsDropped:     rowsDropped,
		rowsRelocated:   rowsRelocated,
		rowsExhausted:   rowsExhausted,
		conflictsFound:  conflictsFound,
		exportJobs:      exportJobs,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
	}
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveResolveRun records the outcome counters of one resolution run.
func (m *MetricsService) ObserveResolveRun(stats timetable.Stats, conflicts int, duration time.Duration) {
	if m == nil {
		return
	}
	m.resolveRuns.Inc()
	m.resolveDuration.Observe(duration.Seconds())
	m.rowsProcessed.Add(float64(stats.TotalRows))
	m.rowsDropped.Add(float64(stats.Dropped))
	m.rowsRelocated.Add(float64(stats.Relocated))
	m.rowsExhausted.Add(float64(stats.Exhausted))
	m.conflictsFound.Add(float64(conflicts))
}

// ObserveExportJob records an export job reaching a terminal status.
func (m *MetricsService) ObserveExportJob(status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(status)).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates the ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
