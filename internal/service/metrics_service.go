package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/short-course-api/internal/models"
)

const metricsNamespace = "short_course"

// MetricsService owns the Prometheus registry and keeps a few counters in memory for the JSON snapshot.
type MetricsService struct {
	registry       *prometheus.Registry
	handler        http.Handler
	requestLatency *prometheus.HistogramVec
	requestTotal   *prometheus.CounterVec
	cacheLatency   prometheus.Observer
	cacheWrite     prometheus.Observer
	cacheLookups   *prometheus.CounterVec
	enrollments    *prometheus.CounterVec
	certificates   prometheus.Counter
	reportJobs     *prometheus.CounterVec

	requestCount    uint64
	requestNanos    uint64
	cacheHitCount   uint64
	cacheMissCount  uint64
	certificateHits int64

	mu          sync.Mutex
	transitions map[string]int64
	jobOutcomes map[string]int64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "cache_get_seconds",
		Help:      "Latency of cache lookups",
		Buckets:   prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "cache_set_seconds",
		Help:      "Latency of cache writes",
		Buckets:   prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups partitioned by result",
	}, []string{"result"})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "enrollment_transitions_total",
		Help:      "Enrollment state transitions by target status",
	}, []string{"status"})

	certificates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "certificates_issued_total",
		Help:      "Certificates moved to ISSUED",
	})

	reportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "report_jobs_total",
		Help:      "Report jobs by terminal status",
	}, []string{"type", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines",
		Help:      "Number of running goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestLatency, requestTotal, cacheLatency, cacheWrite, cacheLookups, enrollments, certificates, reportJobs, goroutines)

	return &MetricsService{
		registry:       registry,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestLatency: requestLatency,
		requestTotal:   requestTotal,
		cacheLatency:   cacheLatency,
		cacheWrite:     cacheWrite,
		cacheLookups:   cacheLookups,
		enrollments:    enrollments,
		certificates:   certificates,
		reportJobs:     reportJobs,
		transitions:    make(map[string]int64),
		jobOutcomes:    make(map[string]int64),
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

// ObserveHTTPRequest records request latency and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestLatency.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestNanos, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup result.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEnrollmentTransition counts an enrollment moving into status.
func (m *MetricsService) RecordEnrollmentTransition(status models.EnrollmentStatus) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(string(status)).Inc()
	m.mu.Lock()
	m.transitions[string(status)]++
	m.mu.Unlock()
}

// RecordCertificatesIssued counts newly issued certificates.
func (m *MetricsService) RecordCertificatesIssued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.certificates.Add(float64(n))
	atomic.AddInt64(&m.certificateHits, int64(n))
}

// RecordReportJob counts a report job reaching a terminal status.
func (m *MetricsService) RecordReportJob(reportType models.ReportType, status models.ReportStatus) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(string(reportType), string(status)).Inc()
	m.mu.Lock()
	m.jobOutcomes[string(status)]++
	m.mu.Unlock()
}

// Snapshot returns the in-memory aggregates.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	nanos := atomic.LoadUint64(&m.requestNanos)

	snapshot := models.SystemMetrics{
		RequestsTotal:         requests,
		CacheHits:             hits,
		CacheMisses:           misses,
		CertificatesIssued:    atomic.LoadInt64(&m.certificateHits),
		EnrollmentTransitions: make(map[string]int64),
		ReportJobs:            make(map[string]int64),
		Goroutines:            runtime.NumGoroutine(),
		GeneratedAt:           time.Now().UTC(),
	}
	if total := hits + misses; total > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(total)
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(nanos) / float64(requests) / float64(time.Millisecond)
	}

	m.mu.Lock()
	for k, v := range m.transitions {
		snapshot.EnrollmentTransitions[k] = v
	}
	for k, v := range m.jobOutcomes {
		snapshot.ReportJobs[k] = v
	}
	m.mu.Unlock()

	return snapshot
}
