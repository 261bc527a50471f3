package observability

import "time"

// MetricsRegistry records application metrics. Components receive it by
// injection instead of touching the global Prometheus collectors.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Issue and media metrics
	IncrementIssueReports(category string)
	IncrementMediaUploads(kind, outcome string)
	IncrementVideoRejections()
	RecordVideoDuration(seconds float64)
	IncrementStatusChanges(status string)

	// Detector metrics
	IncrementDetectionRequests(outcome string)
	RecordDetectionLatency(duration time.Duration)

	// Auth metrics
	IncrementAuthAttempts(action, outcome string)

	// Rate limiting metrics
	IncrementRateLimitRequests(scope string)
	IncrementRateLimitHits(scope string)

	// Alerts
	IncrementHazardAlerts(level string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementIssueReports(category string) {
	IssueReportCount.WithLabelValues(category).Inc()
}

func (r *PrometheusRegistry) IncrementMediaUploads(kind, outcome string) {
	MediaUploadCount.WithLabelValues(kind, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementVideoRejections() {
	VideoRejections.Inc()
}

func (r *PrometheusRegistry) RecordVideoDuration(seconds float64) {
	VideoDuration.Observe(seconds)
}

func (r *PrometheusRegistry) IncrementStatusChanges(status string) {
	StatusChanges.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementDetectionRequests(outcome string) {
	DetectionRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordDetectionLatency(duration time.Duration) {
	DetectionLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAuthAttempts(action, outcome string) {
	AuthAttempts.WithLabelValues(action, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(scope string) {
	RateLimitRequests.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(scope string) {
	RateLimitHits.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementHazardAlerts(level string) {
	HazardAlertsServed.WithLabelValues(level).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementIssueReports(category string)                                {}
func (r *NoOpRegistry) IncrementMediaUploads(kind, outcome string)                           {}
func (r *NoOpRegistry) IncrementVideoRejections()                                            {}
func (r *NoOpRegistry) RecordVideoDuration(seconds float64)                                  {}
func (r *NoOpRegistry) IncrementStatusChanges(status string)                                 {}
func (r *NoOpRegistry) IncrementDetectionRequests(outcome string)                            {}
func (r *NoOpRegistry) RecordDetectionLatency(duration time.Duration)                        {}
func (r *NoOpRegistry) IncrementAuthAttempts(action, outcome string)                         {}
func (r *NoOpRegistry) IncrementRateLimitRequests(scope string)                              {}
func (r *NoOpRegistry) IncrementRateLimitHits(scope string)                                  {}
func (r *NoOpRegistry) IncrementHazardAlerts(level string)                                   {}
