// Package metrics provides Prometheus metrics for the cinefm server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transfer metrics
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinefm_transfers_total",
			Help: "Total number of finished transfer items",
		},
		[]string{"engine", "status"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinefm_transfer_duration_seconds",
			Help:    "Wall-clock duration of one transfer item",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		},
		[]string{"engine"},
	)

	transfersInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinefm_transfers_in_flight",
			Help: "Number of transfer items currently running",
		},
		[]string{"engine"},
	)

	progressLinesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinefm_progress_lines_skipped_total",
			Help: "Subprocess output lines that did not parse as progress",
		},
		[]string{"engine"},
	)

	// Session metrics
	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinefm_ws_clients",
			Help: "Number of connected event channel clients",
		},
	)

	watchSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinefm_watch_sessions",
			Help: "Number of live directory watch sessions (0 or 1)",
		},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinefm_requests_total",
			Help: "Total client requests by event and outcome",
		},
		[]string{"event", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TransferStarted marks one item of engine as running.
func TransferStarted(engine string) {
	transfersInFlight.WithLabelValues(engine).Inc()
}

// TransferFinished records the outcome of one item started with TransferStarted.
func TransferFinished(engine, status string, elapsed time.Duration) {
	transfersInFlight.WithLabelValues(engine).Dec()
	transfersTotal.WithLabelValues(engine, status).Inc()
	transferDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

// ProgressLineSkipped counts a malformed progress line.
func ProgressLineSkipped(engine string) {
	progressLinesSkipped.WithLabelValues(engine).Inc()
}

// ClientConnected / ClientDisconnected track the event channel clients.
func ClientConnected()    { wsClients.Inc() }
func ClientDisconnected() { wsClients.Dec() }

// SetWatchSessions sets the number of live watch sessions.
func SetWatchSessions(n int) {
	watchSessions.Set(float64(n))
}

// RecordRequest counts one handled client request.
func RecordRequest(event, outcome string) {
	requestsTotal.WithLabelValues(event, outcome).Inc()
}
