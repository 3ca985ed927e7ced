// Package metrics exposes Prometheus instrumentation for the console and
// the backend daemon.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Governance metrics
	governanceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adt_console_governance_fetches_total",
			Help: "Governance slice fetches by slice and result",
		},
		[]string{"slice", "result"},
	)

	governanceRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adt_console_governance_refresh_duration_seconds",
			Help:    "Duration of a full snapshot refresh by source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	stalePanelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adt_console_stale_panels_discarded_total",
			Help: "Panel refresh results discarded because the active session changed",
		},
	)

	// Notification metrics
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adt_console_alerts_total",
			Help: "Alerts produced by consumer and kind",
		},
		[]string{"consumer", "kind"},
	)

	sinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adt_console_notification_sink_errors_total",
			Help: "Notification sink failures by sink",
		},
		[]string{"sink"},
	)

	// Session metrics
	sessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adt_console_sessions",
			Help: "Number of sessions currently registered",
		},
	)

	spawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adt_console_spawns_total",
			Help: "Backend spawn requests by result",
		},
		[]string{"result"},
	)

	channelWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adt_console_channel_write_errors_total",
			Help: "Input forwarding failures rendered inline in a channel",
		},
	)

	// Daemon metrics
	daemonRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adt_backend_requests_total",
			Help: "Backend daemon HTTP requests",
		},
		[]string{"route", "status"},
	)

	daemonRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adt_backend_request_duration_seconds",
			Help:    "Backend daemon HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	backendSessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adt_backend_sessions",
			Help: "Number of PTY sessions owned by the backend",
		},
	)

	initOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			governanceFetchesTotal,
			governanceRefreshDuration,
			stalePanelsTotal,
			alertsTotal,
			sinkErrorsTotal,
			sessionsGauge,
			spawnsTotal,
			channelWriteErrorsTotal,
			daemonRequestsTotal,
			daemonRequestDuration,
			backendSessionsGauge,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records the outcome of one governance slice fetch.
func RecordFetch(slice, result string) {
	governanceFetchesTotal.WithLabelValues(slice, result).Inc()
}

// ObserveRefresh records how long a snapshot refresh took.
func ObserveRefresh(source string, d time.Duration) {
	governanceRefreshDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordStalePanel counts a discarded panel result.
func RecordStalePanel() {
	stalePanelsTotal.Inc()
}

// RecordAlert counts an alert routed to a consumer.
func RecordAlert(consumer, kind string) {
	alertsTotal.WithLabelValues(consumer, kind).Inc()
}

// RecordSinkError counts a swallowed sink failure.
func RecordSinkError(sink string) {
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// SetSessions sets the registered sessions gauge.
func SetSessions(n int) {
	sessionsGauge.Set(float64(n))
}

// RecordSpawn counts a spawn request by result ("ok" or "error").
func RecordSpawn(result string) {
	spawnsTotal.WithLabelValues(result).Inc()
}

// RecordChannelWriteError counts a failed input forward.
func RecordChannelWriteError() {
	channelWriteErrorsTotal.Inc()
}

// RecordDaemonRequest records a backend daemon request.
func RecordDaemonRequest(route string, status int, d time.Duration) {
	daemonRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
	daemonRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetBackendSessions sets the backend-owned PTY sessions gauge.
func SetBackendSessions(n int) {
	backendSessionsGauge.Set(float64(n))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
