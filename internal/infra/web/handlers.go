// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/infra/logging"
	"sprout-payments/internal/infra/metrics"
	"sprout-payments/internal/usecase"
)

// maxWebhookBodySize caps inbound provider webhook payloads at 64 KB.
const maxWebhookBodySize = 64 * 1024

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// subscriptionResponse is the wire shape of a subscription row. Provider ids
// stay internal.
type subscriptionResponse struct {
	PlanID            string    `json:"plan_id"`
	PlanName          string    `json:"plan_name"`
	Status            string    `json:"status"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Interval          string    `json:"interval"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
}

func toSubscriptionResponse(s *model.Subscription) *subscriptionResponse {
	if s == nil {
		return nil
	}
	return &subscriptionResponse{
		PlanID:            s.PlanID,
		PlanName:          s.PlanName,
		Status:            string(s.Status),
		Amount:            s.Amount,
		Currency:          s.Currency,
		Interval:          s.Interval,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		StartDate:         s.StartDate,
		EndDate:           s.EndDate,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto the HTTP status taxonomy and emits the
// structured error body. Details are only exposed in dev mode.
func (s *Server) writeError(w http.ResponseWriter, err error, details string) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrInvalidSignature):
		status, msg = http.StatusBadRequest, "invalid payment signature"
	case errors.Is(err, domain.ErrMalformedPayload):
		status, msg = http.StatusBadRequest, "malformed payload"
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrInsufficientCredits):
		status, msg = http.StatusPaymentRequired, "insufficient analysis credits"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrOrderConflict):
		status, msg = http.StatusConflict, "order already finalized with a different payment"
	case errors.Is(err, domain.ErrProviderTimeout):
		status, msg = http.StatusGatewayTimeout, "payment provider timed out"
	case errors.Is(err, domain.ErrProviderUnavailable):
		status, msg = http.StatusBadGateway, "payment provider unavailable"
	}

	resp := errorResponse{Error: msg}
	if s.dev {
		resp.Details = details
		if resp.Details == "" && err != nil {
			resp.Details = err.Error()
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

type createOrderRequest struct {
	UserID   string `json:"user_id"`
	PlanID   string `json:"plan_id"`
	PlanName string `json:"plan_name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
}

func (s *Server) razorpayCreateOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, domain.ErrInvalidArgument, "invalid JSON body")
			return
		}

		order, err := s.paymentUC.CreateRazorpayOrder(r.Context(), req.UserID, req.PlanID, req.PlanName, req.Amount, req.Currency, req.Interval)
		if err != nil {
			s.writeError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			PlanID   string `json:"plan_id"`
			PlanName string `json:"plan_name"`
			Interval string `json:"interval"`
		}{
			ID:       order.ProviderOrderID,
			Amount:   order.Amount,
			Currency: order.Currency,
			PlanID:   order.PlanID,
			PlanName: order.PlanName,
			Interval: order.Interval,
		})
	}
}

type verifyPaymentRequest struct {
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	UserID            string `json:"user_id"`
	PlanID            string `json:"plan_id"`
	PlanName          string `json:"plan_name"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Interval          string `json:"interval"`
}

func (s *Server) razorpayVerifyPaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req verifyPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			metrics.IncVerify("fail", "bad_json")
			s.writeError(w, domain.ErrInvalidArgument, "invalid JSON body")
			return
		}

		sub, err := s.paymentUC.VerifyRazorpayPayment(r.Context(), usecase.VerifyPaymentRequest{
			RazorpayPaymentID: req.RazorpayPaymentID,
			RazorpayOrderID:   req.RazorpayOrderID,
			RazorpaySignature: req.RazorpaySignature,
			UserID:            req.UserID,
			PlanID:            req.PlanID,
			PlanName:          req.PlanName,
			Amount:            req.Amount,
			Currency:          req.Currency,
			Interval:          req.Interval,
		})
		if err != nil {
			metrics.IncVerify("fail", verifyFailReason(err))
			metrics.ObserveVerify("fail", time.Since(start).Seconds())
			logging.With(r.Context(), s.log).Warn().
				Err(err).
				Str("provider_order_id", req.RazorpayOrderID).
				Str("signature", logging.Redact(req.RazorpaySignature, s.dev)).
				Msg("payment verification failed")
			s.writeError(w, err, "")
			return
		}

		metrics.IncVerify("ok", "")
		metrics.ObserveVerify("ok", time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, struct {
			Success      bool                  `json:"success"`
			Subscription *subscriptionResponse `json:"subscription"`
		}{Success: true, Subscription: toSubscriptionResponse(sub)})
	}
}

func verifyFailReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "missing_fields"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, domain.ErrOrderConflict):
		return "order_conflict"
	case errors.Is(err, domain.ErrOperationFailed):
		return "storage"
	default:
		return "unknown"
	}
}

func (s *Server) subscriptionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			if id := s.optionalIdentity(r); id != nil {
				userID = id.UserID
			}
		}
		if userID == "" {
			s.writeError(w, domain.ErrInvalidArgument, "user_id is required")
			return
		}

		entitled, sub, err := s.subUC.Status(r.Context(), userID)
		if err != nil {
			s.writeError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, struct {
			HasActiveSubscription bool                  `json:"hasActiveSubscription"`
			Subscription          *subscriptionResponse `json:"subscription"`
		}{HasActiveSubscription: entitled, Subscription: toSubscriptionResponse(sub)})
	}
}

func (s *Server) packCheckoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := callerIdentity(r)
		if id == nil {
			s.writeError(w, domain.ErrUnauthorized, "")
			return
		}
		url, err := s.paymentUC.CreatePackCheckout(r.Context(), id.UserID)
		if err != nil {
			s.writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			URL string `json:"url"`
		}{URL: url})
	}
}

type checkoutSessionRequest struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	PlanID    string `json:"plan_id"`
	PlanName  string `json:"plan_name"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Interval  string `json:"interval"`
}

func (s *Server) subscriptionCheckoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, domain.ErrInvalidArgument, "invalid JSON body")
			return
		}

		// A bearer token, when present, is authoritative over body fields.
		if id := s.optionalIdentity(r); id != nil {
			req.UserID = id.UserID
			if id.Email != "" {
				req.UserEmail = id.Email
			}
		}

		url, err := s.paymentUC.CreateSubscriptionCheckout(r.Context(), usecase.SubscriptionCheckoutRequest{
			UserID:    req.UserID,
			UserEmail: req.UserEmail,
			PlanID:    req.PlanID,
			PlanName:  req.PlanName,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Interval:  req.Interval,
		})
		if err != nil {
			s.writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			URL string `json:"url"`
		}{URL: url})
	}
}

// stripeDualModeHandler serves the legacy endpoint that received both webhook
// deliveries and client checkout requests. Webhook deliveries are detected by
// the stripe-signature header.
func (s *Server) stripeDualModeHandler() http.HandlerFunc {
	webhook := s.stripeWebhookHandler()
	checkout := s.subscriptionCheckoutHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("stripe-signature") != "" {
			webhook(w, r)
			return
		}
		checkout(w, r)
	}
}

// stripeWebhookHandler is not behind auth; the provider signature over the
// raw body is the credential. A processing failure returns 5xx so the
// provider retries the delivery.
func (s *Server) stripeWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, domain.ErrMalformedPayload, "could not read webhook body")
			return
		}

		outcome, err := s.paymentUC.HandleStripeEvent(r.Context(), body, r.Header.Get("stripe-signature"))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) || errors.Is(err, domain.ErrMalformedPayload) {
				metrics.IncWebhook("unknown", "invalid")
				s.writeError(w, err, "")
				return
			}
			s.writeError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Received bool   `json:"received"`
			Outcome  string `json:"outcome"`
		}{Received: true, Outcome: string(outcome)})
	}
}

// razorpayWebhookHandler mirrors the Stripe webhook contract: the
// X-Razorpay-Signature over the raw body is the credential, and a processing
// failure returns 5xx so the provider retries the delivery.
func (s *Server) razorpayWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, domain.ErrMalformedPayload, "could not read webhook body")
			return
		}

		outcome, err := s.paymentUC.HandleRazorpayEvent(r.Context(), body, r.Header.Get("X-Razorpay-Signature"))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) || errors.Is(err, domain.ErrMalformedPayload) {
				metrics.IncWebhook("unknown", "invalid")
			}
			s.writeError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Received bool   `json:"received"`
			Outcome  string `json:"outcome"`
		}{Received: true, Outcome: string(outcome)})
	}
}

func (s *Server) cancelSubscriptionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if id := s.optionalIdentity(r); id != nil {
			userID = id.UserID
		} else {
			userID = r.URL.Query().Get("userId")
		}
		if userID == "" {
			s.writeError(w, domain.ErrUnauthorized, "bearer token or userId query param required")
			return
		}

		cancelAt, err := s.subUC.CancelAtPeriodEnd(r.Context(), userID)
		if err != nil {
			s.writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success  bool  `json:"success"`
			CancelAt int64 `json:"cancel_at"`
		}{Success: true, CancelAt: cancelAt})
	}
}

func (s *Server) creditsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			if id := s.optionalIdentity(r); id != nil {
				userID = id.UserID
			}
		}
		if userID == "" {
			s.writeError(w, domain.ErrInvalidArgument, "user_id is required")
			return
		}

		n, err := s.creditUC.Available(r.Context(), userID)
		if err != nil {
			s.writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Credits int `json:"credits"`
		}{Credits: n})
	}
}

func (s *Server) consumeCreditHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := callerIdentity(r)
		if id == nil {
			s.writeError(w, domain.ErrUnauthorized, "")
			return
		}
		if err := s.creditUC.Consume(r.Context(), id.UserID); err != nil {
			s.writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
		}{Success: true})
	}
}
