// Package metrics provides Prometheus metrics for the support-api service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request latency by route.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebhookUpdatesTotal counts inbound Telegram updates by outcome.
	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "webhook_updates_total",
			Help:      "Total Telegram webhook updates by processing outcome",
		},
		[]string{"outcome"},
	)

	// MessagesPersistedTotal counts stored messages by sender type.
	MessagesPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "messages_persisted_total",
			Help:      "Total support messages persisted",
		},
		[]string{"sender"},
	)

	// ImageRehostsTotal counts attachment re-host attempts.
	ImageRehostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "image_rehosts_total",
			Help:      "Total attachment re-host attempts by status",
		},
		[]string{"status"},
	)

	// ImageRehostDuration tracks download plus upload time per attachment.
	ImageRehostDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "image_rehost_duration_seconds",
			Help:      "Duration of attachment download and re-host",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RelayFailuresTotal counts failed deliveries to the Telegram group.
	RelayFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "relay_failures_total",
			Help:      "Total failed message relays to Telegram",
		},
	)

	// SSESubscribers tracks currently connected event stream clients.
	SSESubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jan",
			Subsystem: "support_api",
			Name:      "sse_subscribers",
			Help:      "Number of currently connected SSE subscribers",
		},
	)
)

// RecordRequest records one completed HTTP request.
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordWebhookUpdate records the processing outcome of one update.
func RecordWebhookUpdate(outcome string) {
	WebhookUpdatesTotal.WithLabelValues(outcome).Inc()
}

// RecordMessagePersisted records one stored message.
func RecordMessagePersisted(sender string) {
	MessagesPersistedTotal.WithLabelValues(sender).Inc()
}

// RecordImageRehost records one attachment re-host attempt.
func RecordImageRehost(status string, durationSec float64) {
	ImageRehostsTotal.WithLabelValues(status).Inc()
	ImageRehostDuration.Observe(durationSec)
}

// RecordRelayFailure records one failed Telegram delivery.
func RecordRelayFailure() {
	RelayFailuresTotal.Inc()
}

// SubscriberConnected tracks a new SSE client.
func SubscriberConnected() {
	SSESubscribers.Inc()
}

// SubscriberDisconnected tracks a departed SSE client.
func SubscriberDisconnected() {
	SSESubscribers.Dec()
}
