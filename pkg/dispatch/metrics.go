package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_submitted_total",
			Help: "Accepted notification requests by type and whether they were idempotent replays.",
		},
		[]string{"type", "duplicate"},
	)
	requestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_rejected_total",
			Help: "Notification requests rejected at submission by type.",
		},
		[]string{"type"},
	)
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Adapter sends by channel and result (sent, transient, permanent, throttled).",
		},
		[]string{"channel", "result"},
	)
	throttledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_rate_limited_total",
			Help: "Sends deferred by the local rate limiter by channel.",
		},
		[]string{"channel"},
	)
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Terminal results recorded without a send, by kind.",
		},
		[]string{"kind"},
	)
	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Duration of adapter calls by channel.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)
	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_batch_size",
			Help:    "Number of attempts flushed together by channel.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"channel"},
	)
	readyQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_ready_queue_size",
			Help: "Attempts waiting in the in-process schedule.",
		},
	)
)
