// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/adapter"
	"sprout-payments/internal/domain/ports/repository"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase is the subscription store: at most one authoritative
// subscription row per user, derived from verified payments.
type SubscriptionUseCase interface {
	// ActivateOrRenew upserts the user's subscription for a fresh period
	// starting now. Concurrent verified payments for the same user converge
	// to a single row; last writer wins on plan and end date.
	ActivateOrRenew(ctx context.Context, tx repository.Tx, userID, planID, planName string, amount int64, currency, interval string, intervalCount int) (*model.Subscription, error)

	// CancelAtPeriodEnd instructs the provider to cancel at the period
	// boundary. Local status stays active; access runs until end_date.
	CancelAtPeriodEnd(ctx context.Context, userID string) (cancelAt int64, err error)

	// Status reports entitlement at read time: active status AND an end date
	// in the future. No background expiry job is involved.
	Status(ctx context.Context, userID string) (bool, *model.Subscription, error)

	// LinkProviderSubscription stores the provider-side subscription id once
	// a webhook reveals it, enabling later cancellation.
	LinkProviderSubscription(ctx context.Context, tx repository.Tx, userID, providerSubID string) error
}

type subscriptionUC struct {
	subs    repository.SubscriptionRepository
	gateway adapter.StripeGateway
	log     *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, gateway adapter.StripeGateway, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, gateway: gateway, log: logger}
}

func (u *subscriptionUC) ActivateOrRenew(ctx context.Context, tx repository.Tx, userID, planID, planName string, amount int64, currency, interval string, intervalCount int) (*model.Subscription, error) {
	if userID == "" || planID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	end, err := model.PeriodEnd(now, interval, intervalCount)
	if err != nil {
		return nil, err
	}
	if intervalCount <= 0 {
		intervalCount = 1
	}
	if interval == "" {
		interval = "month"
	}

	sub := &model.Subscription{
		ID:            uuid.NewString(),
		UserID:        userID,
		PlanID:        planID,
		PlanName:      planName,
		Status:        model.SubscriptionStatusActive,
		Amount:        amount,
		Currency:      currency,
		Interval:      interval,
		IntervalCount: intervalCount,
		StartDate:     now,
		EndDate:       end,
		UpdatedAt:     now,
	}
	if err := u.subs.Upsert(ctx, tx, sub); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("user_id", userID).
		Str("plan_id", planID).
		Time("end_date", end).
		Msg("subscription activated")
	return sub, nil
}

func (u *subscriptionUC) CancelAtPeriodEnd(ctx context.Context, userID string) (int64, error) {
	sub, err := u.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return 0, err
	}
	if sub.ProviderSubscriptionID == nil || *sub.ProviderSubscriptionID == "" {
		return 0, domain.ErrNotFound
	}

	cancelAt, err := u.gateway.CancelAtPeriodEnd(ctx, *sub.ProviderSubscriptionID)
	if err != nil {
		return 0, err
	}
	// Access remains active until end_date; only the flag is recorded.
	if err := u.subs.SetCancelAtPeriodEnd(ctx, repository.NoTX, userID); err != nil {
		return 0, err
	}
	u.log.Info().Str("user_id", userID).Int64("cancel_at", cancelAt).Msg("subscription cancel scheduled at period end")
	return cancelAt, nil
}

func (u *subscriptionUC) Status(ctx context.Context, userID string) (bool, *model.Subscription, error) {
	sub, err := u.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if !sub.EntitledAt(time.Now()) {
		return false, nil, nil
	}
	return true, sub, nil
}

func (u *subscriptionUC) LinkProviderSubscription(ctx context.Context, tx repository.Tx, userID, providerSubID string) error {
	if providerSubID == "" {
		return nil
	}
	return u.subs.SetProviderSubscriptionID(ctx, tx, userID, providerSubID)
}
