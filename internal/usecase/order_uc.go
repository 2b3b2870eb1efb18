// File: internal/usecase/order_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/adapter"
	"sprout-payments/internal/domain/ports/repository"
	"sprout-payments/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

// OrderUseCase is the order ledger: one row per checkout attempt, exactly one
// terminal state per order.
type OrderUseCase interface {
	// Create allocates a provider-side order and persists a created row keyed
	// by the provider order id.
	Create(ctx context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error)

	// Complete transitions created -> completed, setting payment id and
	// signature together. Redelivery with the same payment id is absorbed.
	Complete(ctx context.Context, tx repository.Tx, providerOrderID, paymentID, signature string) (*model.Order, error)

	// Fail transitions created -> failed; no-op when already failed.
	Fail(ctx context.Context, tx repository.Tx, providerOrderID string) error

	// ListStuck returns orders still in created older than the cutoff.
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Order, error)
}

type orderUC struct {
	orders  repository.OrderRepository
	gateway adapter.RazorpayGateway
	log     *zerolog.Logger
}

func NewOrderUseCase(orders repository.OrderRepository, gateway adapter.RazorpayGateway, logger *zerolog.Logger) *orderUC {
	return &orderUC{orders: orders, gateway: gateway, log: logger}
}

func (u *orderUC) Create(ctx context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error) {
	if userID == "" || planID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "INR"
	}
	if interval == "" {
		interval = "month"
	}

	receipt := "rcpt_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	notes := map[string]string{
		"user_id":   userID,
		"plan_id":   planID,
		"plan_name": planName,
		"interval":  interval,
		"type":      "subscription",
	}

	po, err := u.gateway.CreateOrder(ctx, amount, currency, receipt, notes)
	if err != nil {
		// A timeout does not mean the provider-side order was not created;
		// surface it distinguishably so the caller treats the attempt as
		// "unknown, needs reconciliation".
		if errors.Is(err, domain.ErrProviderTimeout) {
			u.log.Error().Str("user_id", userID).Msg("razorpay order creation timed out; state unknown")
			return nil, domain.ErrProviderTimeout
		}
		u.log.Error().Err(err).Str("user_id", userID).Msg("razorpay order creation failed")
		return nil, err
	}

	now := time.Now()
	o := &model.Order{
		ID:              uuid.NewString(),
		ProviderOrderID: po.ID,
		UserID:          userID,
		PlanID:          planID,
		PlanName:        planName,
		Amount:          amount,
		Currency:        currency,
		Interval:        interval,
		Receipt:         receipt,
		Status:          model.OrderStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := u.orders.Save(ctx, repository.NoTX, o); err != nil {
		return nil, err
	}
	metrics.IncOrder(u.gateway.Name(), string(model.OrderStatusCreated))
	return o, nil
}

func (u *orderUC) Complete(ctx context.Context, tx repository.Tx, providerOrderID, paymentID, signature string) (*model.Order, error) {
	transitioned, err := u.orders.MarkCompleted(ctx, tx, providerOrderID, paymentID, signature)
	if err != nil {
		return nil, err
	}
	o, err := u.orders.FindByProviderOrderID(ctx, tx, providerOrderID)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// The conditional update matched no created row. Same payment id on a
		// completed row is webhook redelivery and absorbed; anything else is
		// an inconsistency to report, never to overwrite.
		if o.Status == model.OrderStatusCompleted && o.ProviderPaymentID != nil && *o.ProviderPaymentID == paymentID {
			return o, nil
		}
		u.log.Error().
			Str("provider_order_id", providerOrderID).
			Str("status", string(o.Status)).
			Msg("refusing to finalize order in conflicting state")
		return nil, domain.ErrOrderConflict
	}
	metrics.IncOrder(u.gateway.Name(), string(model.OrderStatusCompleted))
	metrics.AddRevenue(o.Currency, o.Amount)
	return o, nil
}

func (u *orderUC) Fail(ctx context.Context, tx repository.Tx, providerOrderID string) error {
	transitioned, err := u.orders.MarkFailed(ctx, tx, providerOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // no ledger row to fail is a no-op, not an error
		}
		return err
	}
	if transitioned {
		metrics.IncOrder(u.gateway.Name(), string(model.OrderStatusFailed))
	}
	return nil
}

func (u *orderUC) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Order, error) {
	return u.orders.ListStuckCreated(ctx, repository.NoTX, olderThan, limit)
}
