// File: internal/infra/web/server.go
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sprout-payments/internal/domain/ports/adapter"
	"sprout-payments/internal/infra/logging"
	"sprout-payments/internal/usecase"
)

// Server is the public payment API. The webhook routes are not behind auth;
// they are secured by provider signatures instead.
type Server struct {
	paymentUC usecase.PaymentUseCase
	subUC     usecase.SubscriptionUseCase
	creditUC  usecase.CreditUseCase
	verifier  adapter.TokenVerifier
	dev       bool
	log       *zerolog.Logger
}

func NewServer(
	paymentUC usecase.PaymentUseCase,
	subUC usecase.SubscriptionUseCase,
	creditUC usecase.CreditUseCase,
	verifier adapter.TokenVerifier,
	dev bool,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		paymentUC: paymentUC,
		subUC:     subUC,
		creditUC:  creditUC,
		verifier:  verifier,
		dev:       dev,
		log:       logger,
	}
}

// Routes builds the public router. Several endpoints keep the flat legacy
// paths the mobile client already calls alongside the namespaced ones.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Razorpay checkout and verification.
	createOrder := s.razorpayCreateOrderHandler()
	r.Post("/razorpay-create-order", createOrder)
	r.Post("/razorpay/create-order", createOrder)
	verifyPayment := s.razorpayVerifyPaymentHandler()
	r.Post("/razorpay-verify-payment", verifyPayment)
	r.Post("/razorpay/verify-payment", verifyPayment)

	status := s.subscriptionStatusHandler()
	r.Get("/razorpay-subscription-status", status)
	r.Get("/razorpay/subscription-status", status)
	r.Post("/webhooks/razorpay", s.razorpayWebhookHandler())

	// Stripe checkout, cancellation and webhooks.
	r.Method(http.MethodPost, "/analyses-purchase", s.requireAuth(s.packCheckoutHandler()))
	r.Post("/stripe-cancel-subscription", s.cancelSubscriptionHandler())
	r.Post("/webhooks/stripe", s.stripeWebhookHandler())
	r.Post("/analyses-purchase-webhook", s.stripeWebhookHandler())
	r.Post("/stripe/create-checkout-session", s.subscriptionCheckoutHandler())
	// The legacy path served both roles: webhook deliveries carry a
	// stripe-signature header, client checkout requests do not.
	r.Post("/stripe-create-checkout-session", s.stripeDualModeHandler())

	// Credit ledger reads and spends.
	r.Get("/analyses/credits", s.creditsHandler())
	r.Method(http.MethodPost, "/analyses/consume", s.requireAuth(s.consumeCreditHandler()))

	return r
}

// corsMiddleware answers browser preflight and stamps every response for the
// web and mobile clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, stripe-signature")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request so log lines from one reconcile can
// be correlated across the stack.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
