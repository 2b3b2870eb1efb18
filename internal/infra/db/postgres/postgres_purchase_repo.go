// File: internal/infra/db/postgres/postgres_purchase_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `id, user_id, quantity, used_count, amount_paid, provider_payment_intent_id, expires_at, created_at`

// Insert relies on the unique index on provider_payment_intent_id: webhook
// redelivery hits DO NOTHING and reports inserted=false.
func (r *purchaseRepo) Insert(ctx context.Context, tx repository.Tx, p *model.AnalysisPurchase) (bool, error) {
	const q = `
INSERT INTO analysis_purchases (
  id, user_id, quantity, used_count, amount_paid, provider_payment_intent_id, expires_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (provider_payment_intent_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.Quantity, p.UsedCount, p.AmountPaid,
		p.ProviderPaymentIntentID, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AnalysisPurchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM analysis_purchases WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.AnalysisPurchase
	for rows.Next() {
		p := &model.AnalysisPurchase{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Quantity, &p.UsedCount, &p.AmountPaid, &p.ProviderPaymentIntentID, &p.ExpiresAt, &p.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

// ConsumeOne spends a credit on the earliest-expiring unexpired row with
// headroom, in a single conditional UPDATE. The inner row lock makes
// concurrent consumers line up instead of double-spending.
func (r *purchaseRepo) ConsumeOne(ctx context.Context, tx repository.Tx, userID string, now time.Time) (bool, error) {
	const q = `
UPDATE analysis_purchases SET used_count = used_count + 1
WHERE id = (
  SELECT id FROM analysis_purchases
  WHERE user_id=$1 AND expires_at > $2 AND used_count < quantity
  ORDER BY expires_at ASC
  LIMIT 1
  FOR UPDATE
);`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) AvailableCredits(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int, error) {
	const q = `SELECT COALESCE(SUM(quantity - used_count),0) FROM analysis_purchases WHERE user_id=$1 AND expires_at > $2 AND used_count < quantity;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		return 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return total, nil
}
