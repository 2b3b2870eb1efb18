// File: internal/infra/db/postgres/postgres_subscription_repo.go
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, plan_name, status, amount, currency, interval, interval_count, provider_subscription_id, cancel_at_period_end, start_date, end_date, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &s.Status,
		&s.Amount, &s.Currency, &s.Interval, &s.IntervalCount,
		&s.ProviderSubscriptionID, &s.CancelAtPeriodEnd,
		&s.StartDate, &s.EndDate, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

// Upsert keys on user_id: a renewal or plan change collapses onto the
// existing row, never a second one. A fresh period also clears any pending
// cancel flag, since a new payment re-commits the user.
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, plan_name, status, amount, currency, interval, interval_count, provider_subscription_id, cancel_at_period_end, start_date, end_date, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (user_id) DO UPDATE SET
  plan_id=$3, plan_name=$4, status=$5, amount=$6, currency=$7, interval=$8, interval_count=$9,
  provider_subscription_id=COALESCE($10, subscriptions.provider_subscription_id),
  cancel_at_period_end=$11, start_date=$12, end_date=$13, updated_at=$14;`

	_, err := execSQL(ctx, r.pool, tx, q,
		sub.ID, sub.UserID, sub.PlanID, sub.PlanName, sub.Status,
		sub.Amount, sub.Currency, sub.Interval, sub.IntervalCount,
		sub.ProviderSubscriptionID, sub.CancelAtPeriodEnd,
		sub.StartDate, sub.EndDate, sub.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, tx repository.Tx, userID string) error {
	const q = `UPDATE subscriptions SET cancel_at_period_end=TRUE, updated_at=NOW() WHERE user_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) SetProviderSubscriptionID(ctx context.Context, tx repository.Tx, userID, providerSubID string) error {
	const q = `UPDATE subscriptions SET provider_subscription_id=$2, updated_at=NOW() WHERE user_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, providerSubID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
