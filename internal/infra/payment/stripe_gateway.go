// File: internal/infra/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/ports/adapter"
)

const stripeAPIBase = "https://api.stripe.com"

var _ adapter.StripeGateway = (*StripeHTTPGateway)(nil)

// StripeHTTPGateway drives the Stripe REST API with form-encoded calls.
// Webhook signatures are checked with stripe-go's ValidatePayload; everything
// else stays plain HTTP so tests can point BaseURL at a local server.
type StripeHTTPGateway struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	successURL    string
	cancelURL     string
	timeout       time.Duration
	client        *http.Client
}

type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string // override for tests; defaults to the live API
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}

func NewStripeHTTPGateway(cfg StripeGatewayConfig) *StripeHTTPGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &StripeHTTPGateway{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		timeout:       timeout,
		client:        &http.Client{},
	}
}

func (g *StripeHTTPGateway) Name() string { return "stripe" }

// doForm performs one bounded call against the Stripe API. A deadline error
// surfaces as domain.ErrProviderTimeout so callers treat the attempt as
// unresolved rather than failed.
func (g *StripeHTTPGateway) doForm(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var reqBody io.Reader
	endpoint := g.baseURL + path
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
	} else {
		reqBody = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrProviderTimeout
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("stripe error: %s (%s)", errResp.Error.Message, errResp.Error.Type)
		}
		return nil, fmt.Errorf("stripe error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// EnsureCustomer searches by user_id metadata first so retried checkouts
// reuse the same customer instead of minting duplicates.
func (g *StripeHTTPGateway) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	search := url.Values{}
	search.Set("query", fmt.Sprintf("metadata['user_id']:'%s'", userID))

	body, err := g.doForm(ctx, http.MethodGet, "/v1/customers/search", search)
	if err != nil {
		return "", err
	}
	var searchResult struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &searchResult); err != nil {
		return "", fmt.Errorf("failed to unmarshal customer search response: %w", err)
	}
	if len(searchResult.Data) > 0 {
		return searchResult.Data[0].ID, nil
	}

	create := url.Values{}
	create.Set("email", email)
	create.Set("metadata[user_id]", userID)
	body, err = g.doForm(ctx, http.MethodPost, "/v1/customers", create)
	if err != nil {
		return "", err
	}
	var customer struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &customer); err != nil {
		return "", fmt.Errorf("failed to unmarshal customer response: %w", err)
	}
	return customer.ID, nil
}

func (g *StripeHTTPGateway) CreateSubscriptionCheckout(ctx context.Context, customerID, userID, planID, planName string, amount int64, currency, interval string) (*adapter.CheckoutSession, error) {
	if currency == "" {
		currency = "inr"
	}
	if interval == "" {
		interval = "month"
	}

	params := url.Values{}
	params.Set("mode", "subscription")
	params.Set("customer", customerID)
	params.Set("client_reference_id", userID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amount, 10))
	params.Set("line_items[0][price_data][recurring][interval]", interval)
	params.Set("line_items[0][price_data][product_data][name]", planName)
	params.Set("line_items[0][price_data][product_data][metadata][plan_id]", planID)
	params.Set("metadata[type]", "subscription")
	params.Set("metadata[user_id]", userID)
	params.Set("metadata[plan_id]", planID)
	params.Set("metadata[plan_name]", planName)
	params.Set("metadata[interval]", interval)
	// carried onto the subscription so renewal invoices can be routed back
	// to the user
	params.Set("subscription_data[metadata][user_id]", userID)
	params.Set("subscription_data[metadata][plan_id]", planID)
	params.Set("success_url", g.successURL)
	params.Set("cancel_url", g.cancelURL)

	return g.createCheckoutSession(ctx, params)
}

func (g *StripeHTTPGateway) CreatePackCheckout(ctx context.Context, userID string, pack adapter.PackConfig) (*adapter.CheckoutSession, error) {
	currency := pack.Currency
	if currency == "" {
		currency = "inr"
	}

	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", userID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(pack.Amount, 10))
	params.Set("line_items[0][price_data][product_data][name]", pack.Name)
	if pack.Description != "" {
		params.Set("line_items[0][price_data][product_data][description]", pack.Description)
	}
	params.Set("metadata[type]", "analysis_pack")
	params.Set("metadata[user_id]", userID)
	params.Set("metadata[quantity]", strconv.Itoa(pack.Quantity))
	params.Set("metadata[validity_days]", strconv.Itoa(pack.ValidityDays))
	// duplicated onto the payment intent so either object resolves the grant
	params.Set("payment_intent_data[metadata][type]", "analysis_pack")
	params.Set("payment_intent_data[metadata][user_id]", userID)
	params.Set("payment_intent_data[metadata][quantity]", strconv.Itoa(pack.Quantity))
	params.Set("payment_intent_data[metadata][validity_days]", strconv.Itoa(pack.ValidityDays))
	successURL := pack.SuccessURL
	if successURL == "" {
		successURL = g.successURL
	}
	cancelURL := pack.CancelURL
	if cancelURL == "" {
		cancelURL = g.cancelURL
	}
	params.Set("success_url", successURL)
	params.Set("cancel_url", cancelURL)

	return g.createCheckoutSession(ctx, params)
}

func (g *StripeHTTPGateway) createCheckoutSession(ctx context.Context, params url.Values) (*adapter.CheckoutSession, error) {
	body, err := g.doForm(ctx, http.MethodPost, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, err
	}
	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session response: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("stripe checkout session has no url, id: %s", session.ID)
	}
	return &adapter.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeHTTPGateway) CancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string) (int64, error) {
	params := url.Values{}
	params.Set("cancel_at_period_end", "true")

	body, err := g.doForm(ctx, http.MethodPost, "/v1/subscriptions/"+providerSubscriptionID, params)
	if err != nil {
		return 0, err
	}
	var sub struct {
		ID                string `json:"id"`
		CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
		CancelAt          int64  `json:"cancel_at"`
	}
	if err := json.Unmarshal(body, &sub); err != nil {
		return 0, fmt.Errorf("failed to unmarshal subscription response: %w", err)
	}
	if !sub.CancelAtPeriodEnd {
		return 0, fmt.Errorf("stripe did not schedule cancellation for %s", providerSubscriptionID)
	}
	return sub.CancelAt, nil
}

// webhookEnvelope is the slice of a Stripe event this service reads. The
// data.object shape differs per event type; only the shared fields appear
// here.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			PaymentStatus     string            `json:"payment_status"`
			PaymentIntent     string            `json:"payment_intent"`
			Subscription      string            `json:"subscription"`
			ClientReferenceID string            `json:"client_reference_id"`
			CustomerEmail     string            `json:"customer_email"`
			AmountTotal       int64             `json:"amount_total"`
			AmountPaid        int64             `json:"amount_paid"`
			Currency          string            `json:"currency"`
			Metadata          map[string]string `json:"metadata"`
			CustomerDetails   struct {
				Email string `json:"email"`
			} `json:"customer_details"`
			SubscriptionDetails struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"subscription_details"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the stripe-signature header over the raw body and
// decodes the event envelope. Unverified payloads never reach the caller.
func (g *StripeHTTPGateway) VerifyWebhook(body []byte, sigHeader string) (*adapter.WebhookEvent, error) {
	if err := stripe.ValidatePayload(body, sigHeader, g.webhookSecret); err != nil {
		return nil, domain.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.ErrMalformedPayload
	}
	if env.ID == "" || env.Type == "" {
		return nil, domain.ErrMalformedPayload
	}

	obj := env.Data.Object
	meta := obj.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	// renewal invoices carry the metadata on the subscription, not the
	// invoice itself
	for k, v := range obj.SubscriptionDetails.Metadata {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}

	userID := meta["user_id"]
	if userID == "" {
		userID = obj.ClientReferenceID
	}
	email := obj.CustomerEmail
	if email == "" {
		email = obj.CustomerDetails.Email
	}
	amount := obj.AmountTotal
	if amount == 0 {
		amount = obj.AmountPaid
	}

	return &adapter.WebhookEvent{
		ID:              env.ID,
		Type:            env.Type,
		PaymentStatus:   obj.PaymentStatus,
		PaymentIntentID: obj.PaymentIntent,
		SubscriptionID:  obj.Subscription,
		CustomerEmail:   email,
		AmountTotal:     amount,
		Currency:        obj.Currency,
		UserID:          userID,
		Metadata:        meta,
	}, nil
}
