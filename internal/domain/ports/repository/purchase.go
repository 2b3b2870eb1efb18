package repository

import (
	"context"
	"time"

	"sprout-payments/internal/domain/model"
)

// PurchaseRepository is the port for the analysis credit ledger.
type PurchaseRepository interface {
	// Insert adds a pack row. Inserting twice for the same provider payment
	// intent id is a no-op (reported via the bool), which absorbs webhook
	// redelivery.
	Insert(ctx context.Context, tx Tx, p *model.AnalysisPurchase) (inserted bool, err error)

	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.AnalysisPurchase, error)

	// ConsumeOne increments used_count on the earliest-expiring unexpired row
	// that still has headroom. Returns false when no credit is available.
	ConsumeOne(ctx context.Context, tx Tx, userID string, now time.Time) (bool, error)

	// AvailableCredits sums quantity-used_count over unexpired rows.
	AvailableCredits(ctx context.Context, tx Tx, userID string, now time.Time) (int, error)
}
