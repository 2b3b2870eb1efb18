package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersTotal,
		ordersStuck,
		revenueTotal,
	)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Order ledger transitions by provider and status (created/completed/failed).",
		},
		[]string{"provider", "status"},
	)

	ordersStuck = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orders_stuck_created",
			Help: "Orders still in created past the stale window, as seen by the last reconciler scan.",
		},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total monetary value of completed payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncOrder(provider, status string) {
	ordersTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func SetStuckOrders(n int) {
	ordersStuck.Set(float64(n))
}

func AddRevenue(currency string, amount int64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
