package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		VerifyRequests,
		VerifyDuration,
		WebhookEvents,
	)
}

var (
	// Count of verification calls grouped by result and bounded reason.
	// result: ok|fail
	// reason (fail only): bad_json|missing_fields|bad_signature|order_conflict|storage|unknown
	VerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of payment verification calls by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// Latency of the verify/reconcile path grouped by result.
	VerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of payment verification handling in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	// Webhook deliveries grouped by event type and outcome.
	// outcome: processed|duplicate|ignored|invalid|error
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound provider webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func IncVerify(result, reason string) {
	VerifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
}

func ObserveVerify(result string, seconds float64) {
	VerifyDuration.WithLabelValues(norm(result)).Observe(seconds)
}

func IncWebhook(eventType, outcome string) {
	WebhookEvents.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}
