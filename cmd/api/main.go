package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/api/router"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/availability"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/business"
	appconfig "github.com/ohohohreohpul/onbuuk2025-sub001/internal/config"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/giftcard"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/notify"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/observability/metrics"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/payments"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	paymentMetrics := metrics.NewPaymentMetrics(registry)
	availabilityMetrics := metrics.NewAvailabilityMetrics(registry)

	// Availability
	availRepo := availability.NewRepository(pool)
	engine := availability.NewEngine(availRepo, availabilityMetrics, logger)
	availHandler := availability.NewHandler(engine, availRepo, logger)

	// Bookings
	bookingRepo := booking.NewRepository(pool)
	slotLock := booking.NewSlotLock(redisClient, cfg.SlotLockTTL)
	bookingService := booking.NewService(bookingRepo, engine, slotLock, logger)
	bookingHandler := booking.NewHandler(bookingService, bookingRepo, logger)

	// Tenant payment config and gift cards
	tenantStore := business.NewStore(redisClient)
	giftCardRepo := giftcard.NewRepository(pool)

	// Notifications
	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	}
	notifyService := notify.NewService(sender, logger)

	// Payments
	ledger := payments.NewLedger(pool)
	reconciler := payments.NewReconciler(bookingRepo, giftCardRepo, tenantStore,
		ledger, notifyService, paymentMetrics, logger)

	paypalClient := payments.NewPayPalClient(cfg.PayPalBaseURL, cfg.PayPalClientID,
		cfg.PayPalClientSecret, cfg.PayPalWebhookID, cfg.ProviderAPITimeout, logger)
	checkoutService := payments.NewCheckoutService(cfg.StripeSecretKey,
		cfg.StripeSuccessURL, cfg.StripeCancelURL, cfg.PlatformFeeBps,
		cfg.ProviderAPITimeout, tenantStore, logger)
	paymentsHandler := payments.NewHandler(checkoutService, paypalClient, reconciler, bookingRepo, logger)

	stripeWebhook := payments.NewWebhookHandler(
		payments.NewStripeProvider(cfg.StripeWebhookSecret), reconciler, logger)
	paypalWebhook := payments.NewWebhookHandler(
		payments.NewPayPalProvider(paypalClient), reconciler, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		AvailabilityHandler: availHandler,
		BookingHandler:      bookingHandler,
		PaymentsHandler:     paymentsHandler,
		StripeWebhook:       stripeWebhook,
		PayPalWebhook:       paypalWebhook,
		StaffAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
