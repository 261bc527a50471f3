package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicreport_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// issue reports accepted, labelled by category
	IssueReportCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_issue_reports_total",
			Help: "Total issue reports created",
		},
		[]string{"category"},
	)

	// media uploads by kind (image/video) and outcome
	MediaUploadCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_media_uploads_total",
			Help: "Total media uploads processed",
		},
		[]string{"kind", "outcome"},
	)

	// videos rejected for exceeding the duration limit
	VideoRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civicreport_video_rejections_total",
			Help: "Total videos rejected for length",
		},
	)

	// observed video durations
	VideoDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civicreport_video_duration_seconds",
			Help:    "Durations of uploaded videos",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 30, 60},
		},
	)

	// detector calls labelled by outcome
	DetectionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_detection_requests_total",
			Help: "Total hazard detector requests",
		},
		[]string{"outcome"},
	)

	// latency of detector calls
	DetectionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civicreport_detection_duration_seconds",
			Help:    "Duration of hazard detector requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// login/register attempts by action and outcome
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"action", "outcome"},
	)

	// rate limit decisions per scope
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_ratelimit_requests_total",
			Help: "Total rate limited requests checked",
		},
		[]string{"scope"},
	)

	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_ratelimit_hits_total",
			Help: "Total requests rejected by rate limiting",
		},
		[]string{"scope"},
	)

	// hazard alerts returned to clients, labelled by level
	HazardAlertsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_hazard_alerts_total",
			Help: "Total hazard alerts served",
		},
		[]string{"level"},
	)

	// status transitions applied by staff or maintenance
	StatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_status_changes_total",
			Help: "Total issue status changes",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		IssueReportCount,
		MediaUploadCount,
		VideoRejections,
		VideoDuration,
		DetectionRequests,
		DetectionLatency,
		AuthAttempts,
		RateLimitRequests,
		RateLimitHits,
		HazardAlertsServed,
		StatusChanges,
	)
}
