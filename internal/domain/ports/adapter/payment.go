package adapter

import (
	"context"
)

// ProviderOrder is the provider-side record allocated for one checkout
// attempt before any money moves.
type ProviderOrder struct {
	ID       string // provider order id (e.g. "order_...")
	Amount   int64  // minor units, echoed back by the provider
	Currency string
}

// RazorpayGateway is the port for the Razorpay Orders API.
type RazorpayGateway interface {
	Name() string

	// CreateOrder allocates a provider-side order. Notes travel with the
	// order and are echoed back in webhooks unmodified. The call is bounded
	// by the gateway's configured timeout; a deadline error surfaces as
	// domain.ErrProviderTimeout ("unknown, needs reconciliation", not
	// "failed").
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*ProviderOrder, error)

	// VerifyPaymentSignature recomputes HMAC-SHA256 over
	// orderID + "|" + paymentID and compares in constant time.
	VerifyPaymentSignature(orderID, paymentID, signature string) bool

	// VerifyWebhookSignature checks X-Razorpay-Signature over the raw body.
	VerifyWebhookSignature(body []byte, signature string) bool
}

// CheckoutSession is a provider-hosted payment page for one purchase.
type CheckoutSession struct {
	ID  string
	URL string
}

// StripeGateway is the port for the Stripe API surface this service needs.
type StripeGateway interface {
	Name() string

	// EnsureCustomer creates or reuses a customer keyed by email.
	EnsureCustomer(ctx context.Context, userID, email string) (customerID string, err error)

	// CreateSubscriptionCheckout builds a recurring Checkout Session for a
	// plan purchase. The user id travels in the session and subscription
	// metadata so webhooks can route without a local lookup.
	CreateSubscriptionCheckout(ctx context.Context, customerID, userID, planID, planName string, amount int64, currency, interval string) (*CheckoutSession, error)

	// CreatePackCheckout builds a one-off payment Checkout Session carrying
	// the pack metadata (type, quantity, validity_days, user_id) end to end.
	CreatePackCheckout(ctx context.Context, userID string, pack PackConfig) (*CheckoutSession, error)

	// CancelAtPeriodEnd instructs Stripe to cancel at the period boundary and
	// returns the scheduled cancellation time (unix seconds).
	CancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string) (cancelAt int64, err error)

	// VerifyWebhook checks the stripe-signature header over the raw body and
	// returns the decoded event envelope.
	VerifyWebhook(body []byte, sigHeader string) (*WebhookEvent, error)
}

// PackConfig is the analysis-pack offer: fixed server-side, never taken from
// the client.
type PackConfig struct {
	Name         string
	Description  string
	Quantity     int
	Amount       int64 // minor units
	Currency     string
	ValidityDays int
	SuccessURL   string
	CancelURL    string
}

// WebhookEvent is the provider-agnostic slice of a verified webhook event
// the orchestrator needs for routing.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentStatus   string
	PaymentIntentID string
	SubscriptionID  string
	CustomerEmail   string
	AmountTotal     int64
	Currency        string
	UserID          string // metadata user_id or client_reference_id
	Metadata        map[string]string
}
