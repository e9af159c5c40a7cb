package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletlink",
			Subsystem: "correlator",
			Name:      "invocations_total",
			Help:      "Settled invocations by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletlink",
			Subsystem: "correlator",
			Name:      "invocation_duration_seconds",
			Help:      "Time from envelope dispatch to settlement.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"method", "outcome"},
	)
	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "walletlink",
			Subsystem: "correlator",
			Name:      "pending_calls",
			Help:      "Invocations awaiting a reply.",
		},
	)
	transportSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletlink",
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Outbound envelopes by selected channel and result.",
		},
		[]string{"channel", "result"},
	)
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletlink",
			Subsystem: "inbox",
			Name:      "messages_total",
			Help:      "Inbound messages by classification.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			invocations,
			invocationDuration,
			inFlight,
			transportSends,
			inboundMessages,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordInvocation(method, outcome string, duration time.Duration) {
	RegisterMetrics()
	invocations.WithLabelValues(method, outcome).Inc()
	invocationDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

func SetPendingCalls(n int) {
	RegisterMetrics()
	inFlight.Set(float64(n))
}

func RecordTransportSend(channel string, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	transportSends.WithLabelValues(channel, result).Inc()
}

func RecordInbound(kind string) {
	RegisterMetrics()
	inboundMessages.WithLabelValues(kind).Inc()
}
