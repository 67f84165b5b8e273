package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/config"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/gateway"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/handler"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/render"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/validator"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}

	keys, err := openIdempotency(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open idempotency store")
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("AUTH_JWT_SECRET is empty: every bearer token will be rejected")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "QR SaaS Entitlement",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    4 * 1024 * 1024,   // bulk requests carry up to 1000 items
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	routes(cfg, st, keys).Register(app)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close backends AFTER server shutdown (even if shutdown timed out)
	keys.close()
	st.close(shutdownCtx)
	log.Info().Msg("server stopped")
}

// routes wires services, middleware and handlers onto the selected backends.
func routes(cfg *config.Config, st *stores, keys *keyStore) handler.Routes {
	retry := service.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Limits.RetryMaxAttempts

	usage := service.NewUsageService(st.accounts, retry)
	gate := service.NewEntitlementService(usage)
	accounts := service.NewAccountService(st.accounts, retry)
	subscriptions := service.NewSubscriptionService(st.accounts, usage, retry)
	coupons := service.NewCouponService(st.coupons, retry)
	qr := service.NewQRService(gate, usage, st.qrcodes, render.NewQRRenderer(), cfg.Limits.APIMaxCallsPerDay, retry)

	pay := gateway.NewHMACGateway(gateway.Credentials{
		KeyID:         cfg.Payment.KeyID,
		KeySecret:     cfg.Payment.KeySecret,
		WebhookSecret: cfg.Payment.WebhookSecret,
	})
	payments := service.NewPaymentService(st.payments, st.accounts, coupons, subscriptions, pay, keys.store,
		service.PaymentConfig{Currency: cfg.Payment.Currency, IdempotencyTTL: cfg.Payment.IdempotencyTTL}, retry)
	admin := service.NewAdminService(accounts, payments, qr)

	validate := validator.New()
	throttle := middleware.NewRateLimiter(middleware.RateLimitConfig{
		PerSecond: cfg.Limits.APIRatePerSecond,
		Burst:     cfg.Limits.APIRateBurst,
	})

	return handler.Routes{
		Health:   handler.NewHealthHandler(storeHealth(st, keys)),
		Accounts: handler.NewAccountHandler(accounts, subscriptions),
		QR:       handler.NewQRHandler(qr, validate),
		Payments: handler.NewPaymentHandler(payments, coupons, subscriptions, validate),
		Coupons:  handler.NewCouponHandler(coupons, validate),
		Admin:    handler.NewAdminHandler(accounts, subscriptions, payments, admin, validate),

		Bearer: middleware.RequireBearer(middleware.BearerConfig{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.JWTIssuer,
		}, accounts),
		APIKey:     middleware.RequireAPIKey(accounts, gate),
		Throttle:   throttle.Handler(),
		BulkPlan:   middleware.RequirePlan(gate, model.PlanPro),
		AdminOnly:  middleware.RequireRole(model.RoleAdmin, model.RoleSuperAdmin),
		SuperAdmin: middleware.RequireRole(model.RoleSuperAdmin),
	}
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
