// File: internal/usecase/credit_uc.go
package usecase

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/repository"
	"sprout-payments/internal/infra/metrics"
)

var _ CreditUseCase = (*creditUC)(nil)

// CreditUseCase is the analysis credit ledger: additive, expiring credit
// packs, separate from subscription entitlement.
type CreditUseCase interface {
	// GrantPack inserts a pack row for a verified analysis_pack purchase.
	// Granting twice for the same payment intent is absorbed (webhook
	// redelivery); metadata that is not an analysis_pack purchase is
	// rejected.
	GrantPack(ctx context.Context, tx repository.Tx, userID, paymentIntentID string, meta map[string]string, amountPaid int64) (*model.AnalysisPurchase, error)

	// Consume spends one credit, earliest-expiring first. Expired rows are
	// skipped; used_count never passes quantity.
	Consume(ctx context.Context, userID string) error

	// Available sums the consumable credits over unexpired rows.
	Available(ctx context.Context, userID string) (int, error)
}

type creditUC struct {
	purchases       repository.PurchaseRepository
	defaultQuantity int
	defaultValidity int
	log             *zerolog.Logger
}

func NewCreditUseCase(purchases repository.PurchaseRepository, defaultQuantity, defaultValidityDays int, logger *zerolog.Logger) *creditUC {
	if defaultQuantity <= 0 {
		defaultQuantity = 10
	}
	if defaultValidityDays <= 0 {
		defaultValidityDays = 30
	}
	return &creditUC{purchases: purchases, defaultQuantity: defaultQuantity, defaultValidity: defaultValidityDays, log: logger}
}

func (u *creditUC) GrantPack(ctx context.Context, tx repository.Tx, userID, paymentIntentID string, meta map[string]string, amountPaid int64) (*model.AnalysisPurchase, error) {
	// Pack purchases share a webhook channel with subscriptions; the type
	// discriminator is the only thing telling them apart.
	if meta["type"] != "analysis_pack" {
		return nil, domain.ErrInvalidArgument
	}

	quantity := u.defaultQuantity
	if q, err := strconv.Atoi(meta["quantity"]); err == nil && q > 0 {
		quantity = q
	}
	validityDays := u.defaultValidity
	if v, err := strconv.Atoi(meta["validity_days"]); err == nil && v > 0 {
		validityDays = v
	}

	p, err := model.NewAnalysisPurchase(uuid.NewString(), userID, paymentIntentID, quantity, amountPaid, validityDays)
	if err != nil {
		return nil, err
	}
	inserted, err := u.purchases.Insert(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	if !inserted {
		u.log.Info().
			Str("user_id", userID).
			Str("payment_intent", paymentIntentID).
			Msg("pack already granted for this payment intent; skipping")
		return p, nil
	}
	metrics.AddCreditsGranted(quantity)
	u.log.Info().
		Str("user_id", userID).
		Int("quantity", quantity).
		Time("expires_at", p.ExpiresAt).
		Msg("analysis pack granted")
	return p, nil
}

func (u *creditUC) Consume(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidArgument
	}
	ok, err := u.purchases.ConsumeOne(ctx, repository.NoTX, userID, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncCreditConsume("insufficient")
		return domain.ErrInsufficientCredits
	}
	metrics.IncCreditConsume("ok")
	return nil
}

func (u *creditUC) Available(ctx context.Context, userID string) (int, error) {
	return u.purchases.AvailableCredits(ctx, repository.NoTX, userID, time.Now())
}
