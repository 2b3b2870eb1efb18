package repository

import (
	"context"

	"sprout-payments/internal/domain/model"
)

// SubscriptionRepository is the port for the subscription store.
type SubscriptionRepository interface {
	// Upsert inserts or updates the user's single subscription row, keyed on
	// user_id. Last writer wins on plan and period fields.
	Upsert(ctx context.Context, tx Tx, sub *model.Subscription) error

	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)

	// SetCancelAtPeriodEnd flags the local row; status stays active until
	// end_date passes.
	SetCancelAtPeriodEnd(ctx context.Context, tx Tx, userID string) error

	// SetProviderSubscriptionID links the provider-side subscription id once
	// it is known from a webhook.
	SetProviderSubscriptionID(ctx context.Context, tx Tx, userID, providerSubID string) error
}
