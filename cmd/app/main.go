// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sprout-payments/internal/config"
	"sprout-payments/internal/domain/ports/adapter"
	pg "sprout-payments/internal/infra/db/postgres"
	"sprout-payments/internal/infra/logging"
	"sprout-payments/internal/infra/metrics"
	"sprout-payments/internal/infra/payment"
	red "sprout-payments/internal/infra/redis"
	"sprout-payments/internal/infra/sched"
	"sprout-payments/internal/infra/web"
	"sprout-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (verbose errors in responses)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled; error details are exposed in responses")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	eventCache := red.NewEventCache(redisClient, cfg.Redis.EventTTL)

	// ---- Repositories ----
	orderRepo := pg.NewOrderRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment gateways ----
	razorpayGW := payment.NewRazorpayDirectGateway(
		cfg.Secrets.RazorpayKeyID,
		cfg.Secrets.RazorpayKeySecret,
		cfg.Secrets.RazorpayWebhookSec,
		cfg.Razorpay.BaseURL,
		cfg.Razorpay.Timeout,
	)
	stripeGW := payment.NewStripeHTTPGateway(payment.StripeGatewayConfig{
		SecretKey:     cfg.Secrets.StripeSecretKey,
		WebhookSecret: cfg.Secrets.StripeWebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
		Timeout:       cfg.Stripe.Timeout,
	})

	// ---- Use cases ----
	orderUC := usecase.NewOrderUseCase(orderRepo, razorpayGW, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, stripeGW, logger)
	creditUC := usecase.NewCreditUseCase(purchaseRepo, cfg.Pack.Quantity, cfg.Pack.ValidityDays, logger)
	paymentUC := usecase.NewPaymentUseCase(
		orderRepo,
		subRepo,
		orderUC,
		subUC,
		creditUC,
		razorpayGW,
		stripeGW,
		txManager,
		locker,
		eventCache,
		adapter.PackConfig{
			Name:         cfg.Pack.Name,
			Description:  cfg.Pack.Description,
			Quantity:     cfg.Pack.Quantity,
			Amount:       cfg.Pack.Amount,
			Currency:     cfg.Pack.Currency,
			ValidityDays: cfg.Pack.ValidityDays,
			SuccessURL:   cfg.Stripe.SuccessURL,
			CancelURL:    cfg.Stripe.CancelURL,
		},
		logger,
	)

	// ---- Public API ----
	verifier := web.NewSupabaseVerifier(cfg.Secrets.SupabaseJWTSecret)
	apiServer := web.NewServer(paymentUC, subUC, creditUC, verifier, cfg.Runtime.Dev, logger)
	public := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("payment API listening")
		if err := public.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("payment API server error")
		}
	}()

	// ---- Admin surface: metrics and health ----
	metrics.MustRegister()
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	admin := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler:           adminMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.AdminPort).Msg("admin server listening")
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	// ---- Stuck-order scanner ----
	reconciler := sched.NewOrderReconciler(orderUC, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := public.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("payment API shutdown error")
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin server shutdown error")
	}
}
