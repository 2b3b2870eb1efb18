package model

import (
	"time"

	"sprout-payments/internal/domain"
)

// AnalysisPurchase is one one-off credit-pack purchase. Packs are additive:
// multiple rows per user accumulate, and each row is retained for audit even
// after its credits are spent or expired.
type AnalysisPurchase struct {
	ID                      string // UUID
	UserID                  string
	Quantity                int
	UsedCount               int
	AmountPaid              int64
	ProviderPaymentIntentID string
	ExpiresAt               time.Time
	CreatedAt               time.Time
}

// NewAnalysisPurchase validates and constructs a pack row.
func NewAnalysisPurchase(id, userID, paymentIntentID string, quantity int, amountPaid int64, validityDays int) (*AnalysisPurchase, error) {
	if id == "" || userID == "" || paymentIntentID == "" || quantity <= 0 || validityDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &AnalysisPurchase{
		ID:                      id,
		UserID:                  userID,
		Quantity:                quantity,
		UsedCount:               0,
		AmountPaid:              amountPaid,
		ProviderPaymentIntentID: paymentIntentID,
		ExpiresAt:               now.AddDate(0, 0, validityDays),
		CreatedAt:               now,
	}, nil
}

// Remaining returns the consumable credits on this row at the given instant.
func (p *AnalysisPurchase) Remaining(now time.Time) int {
	if p == nil || !p.ExpiresAt.After(now) {
		return 0
	}
	if r := p.Quantity - p.UsedCount; r > 0 {
		return r
	}
	return 0
}
