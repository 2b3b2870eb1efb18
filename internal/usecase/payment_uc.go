// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/adapter"
	"sprout-payments/internal/domain/ports/repository"
	"sprout-payments/internal/infra/metrics"
)

// Locker serializes reconciliation per order across the webhook and
// client-callback channels. Locking is best-effort: the conditional ledger
// transitions stay safe without it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// EventCache short-circuits webhook redelivery before the database is
// touched. An event id is recorded only after its ledger writes commit, so a
// delivery that fails mid-flight stays unmarked and the provider's retry gets
// a clean run.
type EventCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// VerifyPaymentRequest is the client-submitted Razorpay verification payload.
type VerifyPaymentRequest struct {
	RazorpayPaymentID string
	RazorpayOrderID   string
	RazorpaySignature string
	UserID            string
	PlanID            string
	PlanName          string
	Amount            int64
	Currency          string
	Interval          string
}

// SubscriptionCheckoutRequest starts a Stripe-hosted subscription purchase.
type SubscriptionCheckoutRequest struct {
	UserID    string
	UserEmail string
	PlanID    string
	PlanName  string
	Amount    int64
	Currency  string
	Interval  string
}

// WebhookOutcome is the bounded routing result for a verified webhook
// delivery, used for metrics and response shaping.
type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

const reconcileLockTTL = 15 * time.Second

var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase orchestrates the order ledger, subscription store and credit
// ledger. A completed payment fans out to exactly one of subscription
// activation or pack grant, selected by the type discriminator carried in
// provider metadata.
type PaymentUseCase interface {
	CreateRazorpayOrder(ctx context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error)
	CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (url string, err error)
	CreatePackCheckout(ctx context.Context, userID string) (url string, err error)

	// VerifyRazorpayPayment reconciles a client-submitted verification. Safe
	// to execute more than once for the same order/payment pair, and safe to
	// interleave with concurrent deliveries of the same logical event.
	VerifyRazorpayPayment(ctx context.Context, req VerifyPaymentRequest) (*model.Subscription, error)

	// HandleStripeEvent reconciles a signature-verified Stripe webhook
	// delivery, routing by event type and metadata.
	HandleStripeEvent(ctx context.Context, body []byte, sigHeader string) (WebhookOutcome, error)

	// HandleRazorpayEvent reconciles a signature-verified Razorpay webhook
	// delivery. It shares the reconcile path with VerifyRazorpayPayment, so
	// whichever channel lands first grants the entitlement and the other
	// converges.
	HandleRazorpayEvent(ctx context.Context, body []byte, signature string) (WebhookOutcome, error)
}

type paymentUC struct {
	orders   repository.OrderRepository
	subs     repository.SubscriptionRepository
	orderUC  OrderUseCase
	subUC    SubscriptionUseCase
	creditUC CreditUseCase
	razorpay adapter.RazorpayGateway
	stripe   adapter.StripeGateway
	tm       repository.TransactionManager
	locker   Locker
	events   EventCache
	pack     adapter.PackConfig
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	orders repository.OrderRepository,
	subs repository.SubscriptionRepository,
	orderUC OrderUseCase,
	subUC SubscriptionUseCase,
	creditUC CreditUseCase,
	razorpay adapter.RazorpayGateway,
	stripe adapter.StripeGateway,
	tm repository.TransactionManager,
	locker Locker,
	events EventCache,
	pack adapter.PackConfig,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		orders:   orders,
		subs:     subs,
		orderUC:  orderUC,
		subUC:    subUC,
		creditUC: creditUC,
		razorpay: razorpay,
		stripe:   stripe,
		tm:       tm,
		locker:   locker,
		events:   events,
		pack:     pack,
		log:      logger,
	}
}

func (u *paymentUC) CreateRazorpayOrder(ctx context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error) {
	return u.orderUC.Create(ctx, userID, planID, planName, amount, currency, interval)
}

func (u *paymentUC) CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (string, error) {
	if req.UserID == "" || req.UserEmail == "" || req.PlanID == "" || req.Amount <= 0 {
		return "", domain.ErrInvalidArgument
	}
	customerID, err := u.stripe.EnsureCustomer(ctx, req.UserID, req.UserEmail)
	if err != nil {
		return "", err
	}
	sess, err := u.stripe.CreateSubscriptionCheckout(ctx, customerID, req.UserID, req.PlanID, req.PlanName, req.Amount, req.Currency, req.Interval)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (u *paymentUC) CreatePackCheckout(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidArgument
	}
	sess, err := u.stripe.CreatePackCheckout(ctx, userID, u.pack)
	if err != nil {
		return "", err
	}
	// Nothing is persisted here; the ledgers move only when the verified
	// webhook arrives.
	return sess.URL, nil
}

func (u *paymentUC) VerifyRazorpayPayment(ctx context.Context, req VerifyPaymentRequest) (*model.Subscription, error) {
	if req.RazorpayPaymentID == "" || req.RazorpayOrderID == "" || req.RazorpaySignature == "" || req.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}

	if !u.razorpay.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		// A bad signature fails the order (when a row exists) and leaves the
		// subscription and credit ledgers untouched.
		if err := u.orderUC.Fail(ctx, repository.NoTX, req.RazorpayOrderID); err != nil {
			u.log.Error().Err(err).Str("provider_order_id", req.RazorpayOrderID).Msg("could not mark order failed after bad signature")
		}
		return nil, domain.ErrInvalidSignature
	}

	return u.reconcileRazorpayOrder(ctx, req)
}

// reconcileRazorpayOrder applies one signed payment against the order ledger
// and subscription store. Both the client verification call and the provider
// webhook funnel through here, so either channel can land first and the other
// converges.
func (u *paymentUC) reconcileRazorpayOrder(ctx context.Context, req VerifyPaymentRequest) (*model.Subscription, error) {
	lockKey := "reconcile:order:" + req.RazorpayOrderID
	if token, err := u.locker.TryLock(ctx, lockKey, reconcileLockTTL); err == nil {
		defer func() { _ = u.locker.Unlock(ctx, lockKey, token) }()
	} else {
		u.log.Warn().Str("provider_order_id", req.RazorpayOrderID).Msg("reconcile lock unavailable; relying on conditional transitions")
	}

	var sub *model.Subscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		order, err := u.orders.FindByProviderOrderID(ctx, tx, req.RazorpayOrderID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// The payment is real and signed even when the ledger row is
			// missing (e.g. the create call timed out after the provider had
			// already allocated the order). Grant the entitlement from the
			// request fields and leave a trace.
			u.log.Warn().Str("provider_order_id", req.RazorpayOrderID).Msg("verified payment without an order row; reconciling from request fields")
			order = nil
		case err != nil:
			return err
		}

		if order != nil && order.Status == model.OrderStatusCompleted {
			if order.ProviderPaymentID != nil && *order.ProviderPaymentID == req.RazorpayPaymentID {
				// Redelivery: converge to the current state, no new writes.
				cur, err := u.subs.FindByUser(ctx, tx, req.UserID)
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				sub = cur
				return nil
			}
			return domain.ErrOrderConflict
		}

		planID, planName, amount, currency, interval := req.PlanID, req.PlanName, req.Amount, req.Currency, req.Interval
		if order != nil {
			// The ledger row is authoritative over client-echoed fields.
			planID, planName = order.PlanID, order.PlanName
			amount, currency, interval = order.Amount, order.Currency, order.Interval
		}

		s, err := u.subUC.ActivateOrRenew(ctx, tx, req.UserID, planID, planName, amount, currency, interval, 1)
		if err != nil {
			return err
		}
		sub = s

		// Finalizing the order comes last so a crash mid-reconcile leaves a
		// created row the stale-order scan can surface for re-driving.
		if order != nil {
			if _, err := u.orderUC.Complete(ctx, tx, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// razorpayWebhookEnvelope is the slice of the provider's webhook body this
// service reads. The notes set at order creation come back unmodified under
// payment.entity.notes.
type razorpayWebhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string            `json:"id"`
				OrderID  string            `json:"order_id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Notes    map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (u *paymentUC) HandleRazorpayEvent(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if !u.razorpay.VerifyWebhookSignature(body, signature) {
		return "", domain.ErrInvalidSignature
	}

	var env razorpayWebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", domain.ErrMalformedPayload
	}
	if env.Event != "payment.captured" {
		u.log.Info().Str("event_type", env.Event).Msg("ignoring unhandled webhook event type")
		metrics.IncWebhook(env.Event, "ignored")
		return OutcomeIgnored, nil
	}

	ent := env.Payload.Payment.Entity
	if ent.ID == "" || ent.OrderID == "" || ent.Notes["user_id"] == "" {
		metrics.IncWebhook(env.Event, "error")
		return "", domain.ErrMalformedPayload
	}

	_, err := u.reconcileRazorpayOrder(ctx, VerifyPaymentRequest{
		RazorpayPaymentID: ent.ID,
		RazorpayOrderID:   ent.OrderID,
		RazorpaySignature: signature,
		UserID:            ent.Notes["user_id"],
		PlanID:            ent.Notes["plan_id"],
		PlanName:          ent.Notes["plan_name"],
		Amount:            ent.Amount,
		Currency:          ent.Currency,
		Interval:          ent.Notes["interval"],
	})
	if err != nil {
		metrics.IncWebhook(env.Event, "error")
		return "", err
	}
	metrics.IncWebhook(env.Event, "processed")
	return OutcomeProcessed, nil
}

func (u *paymentUC) HandleStripeEvent(ctx context.Context, body []byte, sigHeader string) (WebhookOutcome, error) {
	ev, err := u.stripe.VerifyWebhook(body, sigHeader)
	if err != nil {
		return "", err
	}

	if ev.ID != "" {
		seen, err := u.events.Seen(ctx, ev.ID)
		if err != nil {
			// Cache down: fall through, the conditional ledger writes absorb
			// the duplicate anyway.
			u.log.Warn().Err(err).Str("event_id", ev.ID).Msg("event cache unavailable")
		} else if seen {
			metrics.IncWebhook(ev.Type, "duplicate")
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := u.dispatchStripeEvent(ctx, ev)
	if err != nil {
		return outcome, err
	}

	// Recorded after the ledger writes commit. A delivery that errored above
	// never reaches this point, so its event id stays unmarked.
	if outcome == OutcomeProcessed && ev.ID != "" {
		if err := u.events.MarkProcessed(ctx, ev.ID); err != nil {
			u.log.Warn().Err(err).Str("event_id", ev.ID).Msg("could not record processed event id")
		}
	}
	return outcome, nil
}

func (u *paymentUC) dispatchStripeEvent(ctx context.Context, ev *adapter.WebhookEvent) (WebhookOutcome, error) {
	switch ev.Type {
	case "checkout.session.completed":
		return u.handleCheckoutCompleted(ctx, ev)
	case "invoice.paid":
		return u.handleInvoicePaid(ctx, ev)
	default:
		u.log.Info().Str("event_type", ev.Type).Msg("ignoring unhandled webhook event type")
		metrics.IncWebhook(ev.Type, "ignored")
		return OutcomeIgnored, nil
	}
}

func (u *paymentUC) handleCheckoutCompleted(ctx context.Context, ev *adapter.WebhookEvent) (WebhookOutcome, error) {
	if ev.PaymentStatus != "" && ev.PaymentStatus != "paid" {
		u.log.Info().Str("event_id", ev.ID).Str("payment_status", ev.PaymentStatus).Msg("checkout session not paid; skipping")
		metrics.IncWebhook(ev.Type, "ignored")
		return OutcomeIgnored, nil
	}
	if ev.UserID == "" {
		metrics.IncWebhook(ev.Type, "error")
		return "", domain.ErrMalformedPayload
	}

	switch ev.Metadata["type"] {
	case "analysis_pack":
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_, err := u.creditUC.GrantPack(ctx, tx, ev.UserID, ev.PaymentIntentID, ev.Metadata, ev.AmountTotal)
			return err
		})
		if err != nil {
			metrics.IncWebhook(ev.Type, "error")
			return "", err
		}
		metrics.IncWebhook(ev.Type, "processed")
		return OutcomeProcessed, nil

	case "subscription":
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			meta := ev.Metadata
			if _, err := u.subUC.ActivateOrRenew(ctx, tx, ev.UserID, meta["plan_id"], meta["plan_name"], ev.AmountTotal, ev.Currency, meta["interval"], 1); err != nil {
				return err
			}
			if ev.SubscriptionID == "" {
				return nil
			}
			return u.subUC.LinkProviderSubscription(ctx, tx, ev.UserID, ev.SubscriptionID)
		})
		if err != nil {
			metrics.IncWebhook(ev.Type, "error")
			return "", err
		}
		metrics.IncWebhook(ev.Type, "processed")
		return OutcomeProcessed, nil

	default:
		u.log.Info().Str("event_id", ev.ID).Msg("checkout session without a known type discriminator; skipping")
		metrics.IncWebhook(ev.Type, "ignored")
		return OutcomeIgnored, nil
	}
}

// handleInvoicePaid reconciles recurring billing cycles after the first
// checkout. The stored row carries the plan and interval, so the renewal only
// needs the user identity from the event.
func (u *paymentUC) handleInvoicePaid(ctx context.Context, ev *adapter.WebhookEvent) (WebhookOutcome, error) {
	if ev.UserID == "" {
		u.log.Info().Str("event_id", ev.ID).Msg("invoice.paid without user metadata; skipping")
		metrics.IncWebhook(ev.Type, "ignored")
		return OutcomeIgnored, nil
	}

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByUser(ctx, tx, ev.UserID)
		if err != nil {
			return err
		}
		if _, err := u.subUC.ActivateOrRenew(ctx, tx, ev.UserID, sub.PlanID, sub.PlanName, sub.Amount, sub.Currency, sub.Interval, sub.IntervalCount); err != nil {
			return err
		}
		if ev.SubscriptionID == "" {
			return nil
		}
		return u.subUC.LinkProviderSubscription(ctx, tx, ev.UserID, ev.SubscriptionID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("event_id", ev.ID).Str("user_id", ev.UserID).Msg("invoice.paid for user without a local subscription; skipping")
			metrics.IncWebhook(ev.Type, "ignored")
			return OutcomeIgnored, nil
		}
		metrics.IncWebhook(ev.Type, "error")
		return "", err
	}
	metrics.IncWebhook(ev.Type, "processed")
	return OutcomeProcessed, nil
}
