package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		creditsGranted,
		creditsConsumed,
	)
}

var (
	creditsGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_credits_granted_total",
			Help: "Analysis credits granted via verified pack purchases.",
		},
	)

	// result: ok|insufficient
	creditsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_credits_consume_total",
			Help: "Credit consumption attempts by result.",
		},
		[]string{"result"},
	)
)

func AddCreditsGranted(n int) {
	creditsGranted.Add(float64(n))
}

func IncCreditConsume(result string) {
	creditsConsumed.WithLabelValues(norm(result)).Inc()
}
