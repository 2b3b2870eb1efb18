//go:build !integration

// File: internal/infra/web/handlers_test.go
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/adapter"
	"sprout-payments/internal/domain/ports/repository"
	"sprout-payments/internal/usecase"
)

// --- Stub use cases ---

type stubPaymentUC struct {
	createOrderFn  func(ctx context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error)
	subCheckoutFn  func(ctx context.Context, req usecase.SubscriptionCheckoutRequest) (string, error)
	packCheckoutFn func(ctx context.Context, userID string) (string, error)
	verifyFn       func(ctx context.Context, req usecase.VerifyPaymentRequest) (*model.Subscription, error)
	stripeEventFn  func(ctx context.Context, body []byte, sigHeader string) (usecase.WebhookOutcome, error)
	rzpEventFn     func(ctx context.Context, body []byte, signature string) (usecase.WebhookOutcome, error)
}

func (s *stubPaymentUC) CreateRazorpayOrder(ctx context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error) {
	return s.createOrderFn(ctx, userID, planID, planName, amount, currency, interval)
}

func (s *stubPaymentUC) CreateSubscriptionCheckout(ctx context.Context, req usecase.SubscriptionCheckoutRequest) (string, error) {
	return s.subCheckoutFn(ctx, req)
}

func (s *stubPaymentUC) CreatePackCheckout(ctx context.Context, userID string) (string, error) {
	return s.packCheckoutFn(ctx, userID)
}

func (s *stubPaymentUC) VerifyRazorpayPayment(ctx context.Context, req usecase.VerifyPaymentRequest) (*model.Subscription, error) {
	return s.verifyFn(ctx, req)
}

func (s *stubPaymentUC) HandleStripeEvent(ctx context.Context, body []byte, sigHeader string) (usecase.WebhookOutcome, error) {
	return s.stripeEventFn(ctx, body, sigHeader)
}

func (s *stubPaymentUC) HandleRazorpayEvent(ctx context.Context, body []byte, signature string) (usecase.WebhookOutcome, error) {
	return s.rzpEventFn(ctx, body, signature)
}

type stubSubUC struct {
	statusFn func(ctx context.Context, userID string) (bool, *model.Subscription, error)
	cancelFn func(ctx context.Context, userID string) (int64, error)
}

func (s *stubSubUC) ActivateOrRenew(ctx context.Context, tx repository.Tx, userID, planID, planName string, amount int64, currency, interval string, intervalCount int) (*model.Subscription, error) {
	return nil, errors.New("not wired in this test")
}

func (s *stubSubUC) CancelAtPeriodEnd(ctx context.Context, userID string) (int64, error) {
	return s.cancelFn(ctx, userID)
}

func (s *stubSubUC) Status(ctx context.Context, userID string) (bool, *model.Subscription, error) {
	return s.statusFn(ctx, userID)
}

func (s *stubSubUC) LinkProviderSubscription(ctx context.Context, tx repository.Tx, userID, providerSubID string) error {
	return errors.New("not wired in this test")
}

type stubCreditUC struct {
	availableFn func(ctx context.Context, userID string) (int, error)
	consumeFn   func(ctx context.Context, userID string) error
}

func (s *stubCreditUC) GrantPack(ctx context.Context, tx repository.Tx, userID, paymentIntentID string, meta map[string]string, amountPaid int64) (*model.AnalysisPurchase, error) {
	return nil, errors.New("not wired in this test")
}

func (s *stubCreditUC) Consume(ctx context.Context, userID string) error {
	return s.consumeFn(ctx, userID)
}

func (s *stubCreditUC) Available(ctx context.Context, userID string) (int, error) {
	return s.availableFn(ctx, userID)
}

// stubVerifier accepts "tok-<userID>" and nothing else.
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (*adapter.Identity, error) {
	if !strings.HasPrefix(token, "tok-") {
		return nil, domain.ErrUnauthorized
	}
	userID := strings.TrimPrefix(token, "tok-")
	return &adapter.Identity{UserID: userID, Email: userID + "@example.com"}, nil
}

var _ usecase.PaymentUseCase = (*stubPaymentUC)(nil)
var _ usecase.SubscriptionUseCase = (*stubSubUC)(nil)
var _ usecase.CreditUseCase = (*stubCreditUC)(nil)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestServer(p *stubPaymentUC, sub *stubSubUC, credit *stubCreditUC) http.Handler {
	s := NewServer(p, sub, credit, stubVerifier{}, false, newTestLogger())
	return s.Routes()
}

func testSubscription(userID string) *model.Subscription {
	now := time.Now()
	return &model.Subscription{
		ID:        "sub-1",
		UserID:    userID,
		PlanID:    "monthly",
		PlanName:  "Monthly",
		Status:    model.SubscriptionStatusActive,
		Amount:    9900,
		Currency:  "INR",
		Interval:  "month",
		StartDate: now,
		EndDate:   now.AddDate(0, 1, 0),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return m
}

// --- Tests ---

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(&stubPaymentUC{}, &stubSubUC{}, &stubCreditUC{})

	rr := doJSON(t, h, http.MethodOptions, "/razorpay/create-order", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	// Regular responses carry the header too.
	p := &stubPaymentUC{createOrderFn: func(_ context.Context, _, _, _ string, _ int64, _, _ string) (*model.Order, error) {
		return nil, domain.ErrInvalidArgument
	}}
	rr = doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/razorpay/create-order", map[string]string{}, nil)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("POST response Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRazorpayCreateOrderHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		p := &stubPaymentUC{createOrderFn: func(_ context.Context, userID, planID, planName string, amount int64, currency, interval string) (*model.Order, error) {
			return &model.Order{
				ProviderOrderID: "order_abc",
				UserID:          userID,
				PlanID:          planID,
				PlanName:        planName,
				Amount:          amount,
				Currency:        currency,
				Interval:        interval,
				Status:          model.OrderStatusCreated,
			}, nil
		}}
		h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

		body := map[string]interface{}{
			"user_id": "u1", "plan_id": "monthly", "plan_name": "Monthly",
			"amount": 9900, "currency": "INR", "interval": "month",
		}
		rr := doJSON(t, h, http.MethodPost, "/razorpay-create-order", body, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		resp := decodeBody(t, rr)
		if resp["id"] != "order_abc" || resp["amount"].(float64) != 9900 || resp["plan_id"] != "monthly" {
			t.Errorf("unexpected response: %v", resp)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		h := newTestServer(&stubPaymentUC{}, &stubSubUC{}, &stubCreditUC{})
		req := httptest.NewRequest(http.MethodPost, "/razorpay/create-order", strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		p := &stubPaymentUC{createOrderFn: func(_ context.Context, _, _, _ string, _ int64, _, _ string) (*model.Order, error) {
			return nil, domain.ErrInvalidArgument
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/razorpay/create-order", map[string]string{}, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("ProviderTimeout", func(t *testing.T) {
		p := &stubPaymentUC{createOrderFn: func(_ context.Context, _, _, _ string, _ int64, _, _ string) (*model.Order, error) {
			return nil, domain.ErrProviderTimeout
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/razorpay/create-order", map[string]string{"user_id": "u1"}, nil)
		if rr.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d, want 504", rr.Code)
		}
	})
}

func TestRazorpayVerifyPaymentHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got usecase.VerifyPaymentRequest
		p := &stubPaymentUC{verifyFn: func(_ context.Context, req usecase.VerifyPaymentRequest) (*model.Subscription, error) {
			got = req
			return testSubscription(req.UserID), nil
		}}
		h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

		body := map[string]interface{}{
			"razorpay_payment_id": "pay_1",
			"razorpay_order_id":   "order_1",
			"razorpay_signature":  "sig",
			"user_id":             "u1",
			"plan_id":             "monthly",
			"amount":              9900,
		}
		rr := doJSON(t, h, http.MethodPost, "/razorpay/verify-payment", body, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		if got.RazorpayOrderID != "order_1" || got.UserID != "u1" {
			t.Errorf("use case saw %+v", got)
		}
		resp := decodeBody(t, rr)
		if resp["success"] != true {
			t.Errorf("success = %v, want true", resp["success"])
		}
		sub, ok := resp["subscription"].(map[string]interface{})
		if !ok || sub["plan_id"] != "monthly" || sub["status"] != "active" {
			t.Errorf("subscription = %v", resp["subscription"])
		}
	})

	t.Run("BadSignature", func(t *testing.T) {
		p := &stubPaymentUC{verifyFn: func(_ context.Context, _ usecase.VerifyPaymentRequest) (*model.Subscription, error) {
			return nil, domain.ErrInvalidSignature
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/razorpay/verify-payment", map[string]string{}, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
		resp := decodeBody(t, rr)
		if resp["error"] == "" {
			t.Error("expected an error message in body")
		}
	})

	t.Run("OrderConflict", func(t *testing.T) {
		p := &stubPaymentUC{verifyFn: func(_ context.Context, _ usecase.VerifyPaymentRequest) (*model.Subscription, error) {
			return nil, domain.ErrOrderConflict
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/razorpay/verify-payment", map[string]string{}, nil)
		if rr.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rr.Code)
		}
	})
}

func TestSubscriptionStatusHandler(t *testing.T) {
	sub := &stubSubUC{statusFn: func(_ context.Context, userID string) (bool, *model.Subscription, error) {
		if userID == "u1" {
			return true, testSubscription(userID), nil
		}
		return false, nil, nil
	}}
	h := newTestServer(&stubPaymentUC{}, sub, &stubCreditUC{})

	t.Run("Entitled", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/razorpay-subscription-status?user_id=u1", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		resp := decodeBody(t, rr)
		if resp["hasActiveSubscription"] != true {
			t.Errorf("hasActiveSubscription = %v, want true", resp["hasActiveSubscription"])
		}
		if resp["subscription"] == nil {
			t.Error("expected a subscription object")
		}
	})

	t.Run("NotEntitledNullSubscription", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/razorpay/subscription-status?user_id=ghost", nil, nil)
		resp := decodeBody(t, rr)
		if resp["hasActiveSubscription"] != false {
			t.Errorf("hasActiveSubscription = %v, want false", resp["hasActiveSubscription"])
		}
		if resp["subscription"] != nil {
			t.Errorf("subscription = %v, want null", resp["subscription"])
		}
	})

	t.Run("UserFromBearerToken", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/razorpay-subscription-status", nil, map[string]string{"Authorization": "Bearer tok-u1"})
		resp := decodeBody(t, rr)
		if resp["hasActiveSubscription"] != true {
			t.Errorf("hasActiveSubscription = %v, want true", resp["hasActiveSubscription"])
		}
	})

	t.Run("MissingUser", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/razorpay-subscription-status", nil, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}

func TestPackCheckoutHandler(t *testing.T) {
	p := &stubPaymentUC{packCheckoutFn: func(_ context.Context, userID string) (string, error) {
		return "https://checkout.example/" + userID, nil
	}}
	h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

	t.Run("RequiresAuth", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/analyses-purchase", nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("RejectsBadToken", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/analyses-purchase", nil, map[string]string{"Authorization": "Bearer nope"})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("ReturnsCheckoutURL", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/analyses-purchase", nil, map[string]string{"Authorization": "Bearer tok-u1"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		resp := decodeBody(t, rr)
		if resp["url"] != "https://checkout.example/u1" {
			t.Errorf("url = %v", resp["url"])
		}
	})
}

func TestSubscriptionCheckoutHandler(t *testing.T) {
	t.Run("BearerOverridesBodyIdentity", func(t *testing.T) {
		var got usecase.SubscriptionCheckoutRequest
		p := &stubPaymentUC{subCheckoutFn: func(_ context.Context, req usecase.SubscriptionCheckoutRequest) (string, error) {
			got = req
			return "https://checkout.example/sess", nil
		}}
		h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

		body := map[string]interface{}{
			"user_id": "spoofed", "user_email": "spoof@example.com",
			"plan_id": "monthly", "plan_name": "Monthly", "amount": 49900,
		}
		rr := doJSON(t, h, http.MethodPost, "/stripe/create-checkout-session", body, map[string]string{"Authorization": "Bearer tok-u1"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		if got.UserID != "u1" || got.UserEmail != "u1@example.com" {
			t.Errorf("identity not taken from token: %+v", got)
		}
		if got.PlanID != "monthly" || got.Amount != 49900 {
			t.Errorf("plan fields lost: %+v", got)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		p := &stubPaymentUC{subCheckoutFn: func(_ context.Context, _ usecase.SubscriptionCheckoutRequest) (string, error) {
			return "", domain.ErrInvalidArgument
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/stripe/create-checkout-session", map[string]string{}, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}

func TestStripeWebhookHandler(t *testing.T) {
	t.Run("Processed", func(t *testing.T) {
		var gotSig string
		var gotBody []byte
		p := &stubPaymentUC{stripeEventFn: func(_ context.Context, body []byte, sig string) (usecase.WebhookOutcome, error) {
			gotBody, gotSig = body, sig
			return usecase.OutcomeProcessed, nil
		}}
		h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set("stripe-signature", "t=1,v1=abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		if gotSig != "t=1,v1=abc" || string(gotBody) != `{"id":"evt_1"}` {
			t.Errorf("handler passed sig %q body %q", gotSig, gotBody)
		}
		resp := decodeBody(t, rr)
		if resp["received"] != true || resp["outcome"] != "processed" {
			t.Errorf("response = %v", resp)
		}
	})

	t.Run("InvalidSignatureIs400", func(t *testing.T) {
		p := &stubPaymentUC{stripeEventFn: func(_ context.Context, _ []byte, _ string) (usecase.WebhookOutcome, error) {
			return "", domain.ErrInvalidSignature
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/analyses-purchase-webhook", map[string]string{}, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("ProcessingErrorIs500ForRetry", func(t *testing.T) {
		p := &stubPaymentUC{stripeEventFn: func(_ context.Context, _ []byte, _ string) (usecase.WebhookOutcome, error) {
			return "", domain.ErrOperationFailed
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/webhooks/stripe", map[string]string{}, nil)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rr.Code)
		}
	})
}

func TestRazorpayWebhookHandler(t *testing.T) {
	t.Run("Processed", func(t *testing.T) {
		var gotSig string
		var gotBody []byte
		p := &stubPaymentUC{rzpEventFn: func(_ context.Context, body []byte, sig string) (usecase.WebhookOutcome, error) {
			gotBody, gotSig = body, sig
			return usecase.OutcomeProcessed, nil
		}}
		h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(`{"event":"payment.captured"}`))
		req.Header.Set("X-Razorpay-Signature", "rzp-sig")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		if gotSig != "rzp-sig" || string(gotBody) != `{"event":"payment.captured"}` {
			t.Errorf("handler passed sig %q body %q", gotSig, gotBody)
		}
		resp := decodeBody(t, rr)
		if resp["received"] != true || resp["outcome"] != "processed" {
			t.Errorf("response = %v", resp)
		}
	})

	t.Run("InvalidSignatureIs400", func(t *testing.T) {
		p := &stubPaymentUC{rzpEventFn: func(_ context.Context, _ []byte, _ string) (usecase.WebhookOutcome, error) {
			return "", domain.ErrInvalidSignature
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/webhooks/razorpay", map[string]string{}, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("ProcessingErrorIs500ForRetry", func(t *testing.T) {
		p := &stubPaymentUC{rzpEventFn: func(_ context.Context, _ []byte, _ string) (usecase.WebhookOutcome, error) {
			return "", domain.ErrOperationFailed
		}}
		rr := doJSON(t, newTestServer(p, &stubSubUC{}, &stubCreditUC{}), http.MethodPost, "/webhooks/razorpay", map[string]string{}, nil)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rr.Code)
		}
	})
}

func TestStripeDualModeEndpoint(t *testing.T) {
	webhookCalled := false
	checkoutCalled := false
	p := &stubPaymentUC{
		stripeEventFn: func(_ context.Context, _ []byte, _ string) (usecase.WebhookOutcome, error) {
			webhookCalled = true
			return usecase.OutcomeProcessed, nil
		},
		subCheckoutFn: func(_ context.Context, _ usecase.SubscriptionCheckoutRequest) (string, error) {
			checkoutCalled = true
			return "https://checkout.example/sess", nil
		},
	}
	h := newTestServer(p, &stubSubUC{}, &stubCreditUC{})

	t.Run("SignatureHeaderRoutesToWebhook", func(t *testing.T) {
		webhookCalled, checkoutCalled = false, false
		rr := doJSON(t, h, http.MethodPost, "/stripe-create-checkout-session", map[string]string{}, map[string]string{"stripe-signature": "t=1,v1=x"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if !webhookCalled || checkoutCalled {
			t.Errorf("webhook=%v checkout=%v, want webhook only", webhookCalled, checkoutCalled)
		}
	})

	t.Run("PlainRequestRoutesToCheckout", func(t *testing.T) {
		webhookCalled, checkoutCalled = false, false
		body := map[string]interface{}{"user_id": "u1", "user_email": "u1@example.com", "plan_id": "monthly", "amount": 49900}
		rr := doJSON(t, h, http.MethodPost, "/stripe-create-checkout-session", body, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if webhookCalled || !checkoutCalled {
			t.Errorf("webhook=%v checkout=%v, want checkout only", webhookCalled, checkoutCalled)
		}
	})
}

func TestCancelSubscriptionHandler(t *testing.T) {
	sub := &stubSubUC{cancelFn: func(_ context.Context, userID string) (int64, error) {
		if userID == "u1" {
			return 1767225600, nil
		}
		return 0, domain.ErrNotFound
	}}
	h := newTestServer(&stubPaymentUC{}, sub, &stubCreditUC{})

	t.Run("BearerToken", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/stripe-cancel-subscription", nil, map[string]string{"Authorization": "Bearer tok-u1"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		resp := decodeBody(t, rr)
		if resp["success"] != true || resp["cancel_at"].(float64) != 1767225600 {
			t.Errorf("response = %v", resp)
		}
	})

	t.Run("QueryParamFallback", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/stripe-cancel-subscription?userId=u1", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("NoIdentity", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/stripe-cancel-subscription", nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("NoSubscription", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/stripe-cancel-subscription?userId=ghost", nil, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rr.Code)
		}
	})
}

func TestCreditsHandlers(t *testing.T) {
	credit := &stubCreditUC{
		availableFn: func(_ context.Context, userID string) (int, error) {
			if userID == "u1" {
				return 7, nil
			}
			return 0, nil
		},
		consumeFn: func(_ context.Context, userID string) error {
			if userID == "u1" {
				return nil
			}
			return domain.ErrInsufficientCredits
		},
	}
	h := newTestServer(&stubPaymentUC{}, &stubSubUC{}, credit)

	t.Run("Available", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/analyses/credits?user_id=u1", nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		resp := decodeBody(t, rr)
		if resp["credits"].(float64) != 7 {
			t.Errorf("credits = %v, want 7", resp["credits"])
		}
	})

	t.Run("ConsumeRequiresAuth", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/analyses/consume", nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("ConsumeSuccess", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/analyses/consume", nil, map[string]string{"Authorization": "Bearer tok-u1"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	})

	t.Run("Exhausted", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/analyses/consume", nil, map[string]string{"Authorization": "Bearer tok-u2"})
		if rr.Code != http.StatusPaymentRequired {
			t.Errorf("status = %d, want 402", rr.Code)
		}
	})
}

func TestErrorDetailsOnlyInDev(t *testing.T) {
	p := &stubPaymentUC{createOrderFn: func(_ context.Context, _, _, _ string, _ int64, _, _ string) (*model.Order, error) {
		return nil, errors.New("pool exhausted: connection refused")
	}}

	t.Run("ProdHidesDetails", func(t *testing.T) {
		s := NewServer(p, &stubSubUC{}, &stubCreditUC{}, stubVerifier{}, false, newTestLogger())
		rr := doJSON(t, s.Routes(), http.MethodPost, "/razorpay/create-order", map[string]string{"user_id": "u1"}, nil)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rr.Code)
		}
		resp := decodeBody(t, rr)
		if _, ok := resp["details"]; ok {
			t.Errorf("details leaked in prod mode: %v", resp)
		}
	})

	t.Run("DevIncludesDetails", func(t *testing.T) {
		s := NewServer(p, &stubSubUC{}, &stubCreditUC{}, stubVerifier{}, true, newTestLogger())
		rr := doJSON(t, s.Routes(), http.MethodPost, "/razorpay/create-order", map[string]string{"user_id": "u1"}, nil)
		resp := decodeBody(t, rr)
		if resp["details"] != "pool exhausted: connection refused" {
			t.Errorf("details = %v", resp["details"])
		}
	})
}
