// Package metrics provides Prometheus metrics for zonedeck.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "zonedeck"

var (
	// BuildInfo is a constant gauge carrying version labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "go_version"})

	// APIRequests counts gateway requests by provider, operation and outcome code.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_requests_total",
		Help:      "Requests sent to the DNS provider API.",
	}, []string{"provider", "op", "code"})

	// APIRetries counts gateway retries by reason (rate_limited, transient).
	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_retries_total",
		Help:      "Retries performed by the API gateway.",
	}, []string{"provider", "op", "reason"})

	// APIDuration observes full operation latency including retries.
	APIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Latency of gateway operations including retries and pagination.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "op"})

	// Refreshes counts zone refreshes by result.
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "refreshes_total",
		Help:      "Zone refreshes performed by the sync engine.",
	}, []string{"result"})

	// Conflicts counts records flagged as conflicting during refresh.
	Conflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "conflicts_total",
		Help:      "Records flagged as conflicting with a local edit.",
	})

	// Commits counts mutation commits by operation and result.
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "commits_total",
		Help:      "Record mutations committed through the command core.",
	}, []string{"op", "result"})

	// PendingRecords tracks cached records with uncommitted local changes.
	PendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "pending_records",
		Help:      "Cached records with uncommitted local changes.",
	})
)

// SetBuildInfo records the running version.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
