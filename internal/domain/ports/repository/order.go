package repository

import (
	"context"
	"time"

	"sprout-payments/internal/domain/model"
)

// OrderRepository is the port for the order ledger.
type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByProviderOrderID(ctx context.Context, tx Tx, providerOrderID string) (*model.Order, error)

	// MarkCompleted transitions created -> completed, setting payment id and
	// signature together. The update is conditional on the current status;
	// it reports whether a row was actually transitioned.
	MarkCompleted(ctx context.Context, tx Tx, providerOrderID, paymentID, signature string) (bool, error)

	// MarkFailed transitions created -> failed. Returns false without error
	// when the order was already failed (webhook redelivery absorbs).
	MarkFailed(ctx context.Context, tx Tx, providerOrderID string) (bool, error)

	// ListStuckCreated returns orders still in created older than the cutoff,
	// for the reconciler worker.
	ListStuckCreated(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Order, error)
}
