package models

import "time"

// SystemMetrics is the JSON snapshot served next to the Prometheus endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64           `json:"requests_total"`
	AverageRequestDurationMs float64          `json:"average_request_duration_ms"`
	CacheHits                uint64           `json:"cache_hits"`
	CacheMisses              uint64           `json:"cache_misses"`
	CacheHitRatio            float64          `json:"cache_hit_ratio"`
	EnrollmentTransitions    map[string]int64 `json:"enrollment_transitions"`
	CertificatesIssued       int64            `json:"certificates_issued"`
	ReportJobs               map[string]int64 `json:"report_jobs"`
	Goroutines               int              `json:"goroutines"`
	GeneratedAt              time.Time        `json:"generated_at"`
}
