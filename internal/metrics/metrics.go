// Package metrics provides Prometheus metrics for the fetchrelay daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job lifecycle metrics
	jobsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchrelay_jobs_started_total",
			Help: "Total number of jobs accepted",
		},
		[]string{"kind"},
	)

	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchrelay_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"kind", "state"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetchrelay_job_duration_seconds",
			Help:    "Wall time from job creation to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"kind"},
	)

	// Transfer metrics
	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchrelay_bytes_downloaded_total",
			Help: "Total bytes fetched from upstream sources",
		},
	)

	bytesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchrelay_bytes_relayed_total",
			Help: "Total bytes handed to the relay sink",
		},
	)

	workerDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetchrelay_worker_depth",
			Help: "Relay tasks queued or running",
		},
	)

	// SSE metrics
	sseSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetchrelay_sse_subscribers_active",
			Help: "Number of active SSE subscriptions",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchrelay_sse_events_total",
			Help: "Total SSE events published by type",
		},
		[]string{"event"},
	)

	sseEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchrelay_sse_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
	)
)

func RecordJobStarted(kind string) {
	jobsStartedTotal.WithLabelValues(kind).Inc()
}

func RecordJobFinished(kind, state string, elapsed time.Duration) {
	jobsFinishedTotal.WithLabelValues(kind, state).Inc()
	jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func AddBytesDownloaded(n int64) {
	if n > 0 {
		bytesDownloaded.Add(float64(n))
	}
}

func AddBytesRelayed(n int64) {
	if n > 0 {
		bytesRelayed.Add(float64(n))
	}
}

func SetWorkerDepth(n int) {
	workerDepth.Set(float64(n))
}

func SetSSESubscribersActive(n int) {
	sseSubscribersActive.Set(float64(n))
}

func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

func RecordSSEDrop() {
	sseEventsDropped.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
