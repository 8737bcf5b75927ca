package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coderoom"

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events processed by the orchestrator loop, by type.",
	}, []string{"type"})

	RejectedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_rejected_total",
		Help:      "Events rejected or discarded, by reason.",
	}, []string{"reason"})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Rooms with at least one member.",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Registered signal connections.",
	})

	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sent_total",
		Help:      "Frames queued to connections.",
	})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames that hit a full or closed connection.",
	})

	KicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backpressure_kicks_total",
		Help:      "Members removed by the backpressure policy.",
	})

	RunRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_requests_total",
		Help:      "Remote code execution requests, by outcome.",
	}, []string{"outcome"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Latency of the remote runner.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
