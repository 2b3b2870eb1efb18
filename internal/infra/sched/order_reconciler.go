// File: internal/infra/sched/order_reconciler.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sprout-payments/internal/infra/metrics"
	"sprout-payments/internal/usecase"
)

const stuckScanLimit = 200

// OrderReconciler periodically scans for orders stuck in created past the
// staleness cutoff. A stuck order means the provider-side payment may have
// completed without the verification callback or webhook ever landing, so
// each one is surfaced through logs and the stuck-orders gauge for operator
// reconciliation. Finalizing still requires the provider signature, which
// only the verification channels carry.
type OrderReconciler struct {
	orders     usecase.OrderUseCase
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewOrderReconciler(orders usecase.OrderUseCase, interval, staleAfter time.Duration, logger *zerolog.Logger) *OrderReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &OrderReconciler{orders: orders, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *OrderReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *OrderReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stuck, err := w.orders.ListStuck(ctx, cutoff, stuckScanLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("order-reconciler: list stuck orders failed")
		return
	}
	metrics.SetStuckOrders(len(stuck))
	for _, o := range stuck {
		w.log.Warn().
			Str("provider_order_id", o.ProviderOrderID).
			Str("user_id", o.UserID).
			Str("plan_id", o.PlanID).
			Int64("amount", o.Amount).
			Time("created_at", o.CreatedAt).
			Msg("order-reconciler: order stuck in created; needs manual reconciliation")
	}
}
