package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by every collector.
const (
	StatusSuccess  = "success"
	StatusInvalid  = "invalid"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

var latencyBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
}

var (
	// ScanDuration tracks the latency of the scan hot path
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_scan_duration_seconds",
			Help:    "Duration of QR scan handling in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"status"},
	)

	// ScansTotal counts scans by outcome
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_scans_total",
			Help: "Number of QR scans handled, by outcome",
		},
		[]string{"status"},
	)

	// IssueDuration tracks referral code and QR token issuance
	IssueDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_issue_duration_seconds",
			Help:    "Duration of referral code and QR token issuance in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"kind", "status"}, // kind: referral or qr
	)

	// IssuedTotal counts rows actually created, as opposed to reused
	IssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_issued_total",
			Help: "Number of referral and QR rows created",
		},
		[]string{"kind"},
	)
)

// RecordScan records the duration and outcome of a scan
func RecordScan(status string, duration float64) {
	ScanDuration.WithLabelValues(status).Observe(duration)
	ScansTotal.WithLabelValues(status).Inc()
}

// RecordIssue records the duration of an issuance request
func RecordIssue(kind, status string, duration float64) {
	IssueDuration.WithLabelValues(kind, status).Observe(duration)
}

// RecordCreated counts a newly persisted referral or QR row
func RecordCreated(kind string) {
	IssuedTotal.WithLabelValues(kind).Inc()
}
