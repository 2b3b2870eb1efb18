package model

import (
	"time"

	"sprout-payments/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Subscription is a user's entitlement state, at most one row per user.
// Renewal and plan changes update the row in place; the row is never
// duplicated per user.
type Subscription struct {
	ID                     string // UUID
	UserID                 string
	PlanID                 string
	PlanName               string
	Status                 SubscriptionStatus
	Amount                 int64
	Currency               string
	Interval               string // "month" | "year"
	IntervalCount          int
	ProviderSubscriptionID *string // Stripe subscription id when known
	CancelAtPeriodEnd      bool
	StartDate              time.Time
	EndDate                time.Time
	UpdatedAt              time.Time
}

// EntitledAt reports whether the subscription grants access at the given
// instant. Expiry is a read-time computation; no background job is involved.
func (s *Subscription) EntitledAt(now time.Time) bool {
	return s != nil && s.Status == SubscriptionStatusActive && s.EndDate.After(now)
}

// PeriodEnd computes the end of a billing period starting at from.
// Only month and year granularity exist in this domain.
func PeriodEnd(from time.Time, interval string, intervalCount int) (time.Time, error) {
	if intervalCount <= 0 {
		intervalCount = 1
	}
	switch interval {
	case "year":
		return from.AddDate(intervalCount, 0, 0), nil
	case "month", "":
		return from.AddDate(0, intervalCount, 0), nil
	default:
		return time.Time{}, domain.ErrInvalidArgument
	}
}
