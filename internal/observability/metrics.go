package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftwire",
			Subsystem: "wire",
			Name:      "packets_sent_total",
			Help:      "Datagrams sent, by message type.",
		},
		[]string{"node", "type"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftwire",
			Subsystem: "wire",
			Name:      "packets_received_total",
			Help:      "Datagrams received and decoded, by message type.",
		},
		[]string{"node", "type"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftwire",
			Subsystem: "wire",
			Name:      "decode_errors_total",
			Help:      "Datagrams dropped as undecodable.",
		},
		[]string{"node"},
	)
	retransmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftwire",
			Subsystem: "reliability",
			Name:      "retransmits_total",
			Help:      "Data packets resent after a missed ack deadline.",
		},
		[]string{"node"},
	)
	deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftwire",
			Subsystem: "reliability",
			Name:      "delivery_failures_total",
			Help:      "Data packets declared lost after the retry budget.",
		},
		[]string{"node"},
	)
	rttSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driftwire",
			Subsystem: "reliability",
			Name:      "rtt_seconds",
			Help:      "Round trip from data send to ack receipt.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node"},
	)
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "driftwire",
			Subsystem: "session",
			Name:      "active",
			Help:      "Live sessions tracked by the endpoint.",
		},
		[]string{"node"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driftwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			packetsSent, packetsReceived, decodeErrors,
			retransmits, deliveryFailures, rttSeconds,
			activeSessions, httpRequests, httpDuration,
		)
	})
}

func RecordPacketSent(node, msgType string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(node, msgType).Inc()
}

func RecordPacketReceived(node, msgType string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(node, msgType).Inc()
}

func RecordDecodeError(node string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(node).Inc()
}

func RecordRetransmit(node string) {
	RegisterMetrics()
	retransmits.WithLabelValues(node).Inc()
}

func RecordDeliveryFailure(node string) {
	RegisterMetrics()
	deliveryFailures.WithLabelValues(node).Inc()
}

func RecordRTT(node string, rtt time.Duration) {
	RegisterMetrics()
	rttSeconds.WithLabelValues(node).Observe(rtt.Seconds())
}

func SetActiveSessions(node string, n int) {
	RegisterMetrics()
	activeSessions.WithLabelValues(node).Set(float64(n))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
