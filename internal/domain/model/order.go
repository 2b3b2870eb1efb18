package model

import "time"

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"   // provider order allocated; awaiting payment
	OrderStatusCompleted OrderStatus = "completed" // signature verified, entitlement granted
	OrderStatusFailed    OrderStatus = "failed"    // verification failed
)

// Order records one checkout attempt against a payment provider. The row is
// the durable record of intent: created once, finalized at most once, never
// deleted. ProviderPaymentID and ProviderSignature are set together on the
// transition to completed and only after the signature check passed.
type Order struct {
	ID                string // UUID, internal
	ProviderOrderID   string // provider-assigned, unique
	UserID            string
	PlanID            string
	PlanName          string
	Amount            int64 // minor units (paise/cents)
	Currency          string
	Interval          string // "month" | "year"
	Receipt           string
	Status            OrderStatus
	ProviderPaymentID *string
	ProviderSignature *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
