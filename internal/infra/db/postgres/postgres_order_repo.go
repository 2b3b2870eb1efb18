// File: internal/infra/db/postgres/postgres_order_repo.go
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

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, provider_order_id, user_id, plan_id, plan_name, amount, currency, interval, receipt, status, provider_payment_id, provider_signature, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	if err := row.Scan(
		&o.ID, &o.ProviderOrderID, &o.UserID, &o.PlanID, &o.PlanName,
		&o.Amount, &o.Currency, &o.Interval, &o.Receipt, &o.Status,
		&o.ProviderPaymentID, &o.ProviderSignature, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (
  id, provider_order_id, user_id, plan_id, plan_name, amount, currency, interval, receipt, status, provider_payment_id, provider_signature, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
);`
	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.ProviderOrderID, o.UserID, o.PlanID, o.PlanName,
		o.Amount, o.Currency, o.Interval, o.Receipt, o.Status,
		o.ProviderPaymentID, o.ProviderSignature, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByProviderOrderID(ctx context.Context, tx repository.Tx, providerOrderID string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE provider_order_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, providerOrderID)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

// MarkCompleted is conditional on the row still being in created. The rows
// affected count distinguishes a real transition from a lost race or a
// redelivery.
func (r *orderRepo) MarkCompleted(ctx context.Context, tx repository.Tx, providerOrderID, paymentID, signature string) (bool, error) {
	const q = `UPDATE orders SET status='completed', provider_payment_id=$2, provider_signature=$3, updated_at=NOW() WHERE provider_order_id=$1 AND status='created';`
	tag, err := execSQL(ctx, r.pool, tx, q, providerOrderID, paymentID, signature)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepo) MarkFailed(ctx context.Context, tx repository.Tx, providerOrderID string) (bool, error) {
	const q = `UPDATE orders SET status='failed', updated_at=NOW() WHERE provider_order_id=$1 AND status='created';`
	tag, err := execSQL(ctx, r.pool, tx, q, providerOrderID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		// distinguish "already terminal" from "no such order"
		if _, err := r.FindByProviderOrderID(ctx, tx, providerOrderID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *orderRepo) ListStuckCreated(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE status='created' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
