package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ticket-marketplace/config"
	"ticket-marketplace/internal/handlers"
	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/services/paygate"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/security"
	"ticket-marketplace/utils"

	_ "ticket-marketplace/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	if cfg.Environment == "development" {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := paygate.New(ctx, &cfg.PayGate, cfg.GatewayTimeout)
	if err != nil {
		return err
	}

	monitor := monitoring.NewMonitor(redisClient)

	// Initialize services
	ticketService := services.NewTicketService(app, redisClient, cfg.ReservationWindow)
	bookingService := services.NewBookingService(app, ticketService, monitor)
	identityService := services.NewIdentityService(app)
	revenueService := services.NewRevenueService(app)
	paymentService := services.NewPaymentService(app, redisClient, bookingService, gateway, monitor, cfg.CallbackLockTTL)

	// Consume the gateway's async settlement notifications through the
	// same idempotent path as the REST callback.
	txChannel := make(chan *paygate.Transaction, 1)
	gateway.SetNotificationChannel(txChannel)
	go paymentService.ProcessNotifications(ctx, txChannel)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(app, identityService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	bookingHandler := handlers.NewBookingHandler(app, bookingService, revenueService)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Record last_login on every successful auth.
	app.OnRecordAuthRequest("users").BindFunc(func(e *core.RecordAuthRequestEvent) error {
		if err := identityService.RecordLogin(e.Request.Context(), e.Record); err != nil {
			slog.Error("failed to record login", "user", e.Record.Id, "error", err)
		}
		return e.Next()
	})

	// Sidecar server: prometheus scrape target and the gateway webhook.
	if cfg.EnableMetrics {
		if err := startSidecar(cfg, redisClient, paymentService); err != nil {
			return err
		}
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// User endpoints
		e.Router.GET("/api/v1/users", userHandler.ListUsers)
		e.Router.PATCH("/api/v1/users/{id}/role", userHandler.ChangeRole)

		// Ticket endpoints
		e.Router.GET("/api/v1/tickets", ticketHandler.ListPublic)
		e.Router.POST("/api/v1/tickets", ticketHandler.Submit)
		e.Router.PATCH("/api/v1/tickets/{id}/verify", ticketHandler.SetVerification)
		e.Router.PATCH("/api/v1/tickets/{id}/advertise", ticketHandler.SetAdvertised)

		// Booking endpoints
		e.Router.POST("/api/v1/bookings", bookingHandler.Create)
		e.Router.PATCH("/api/v1/bookings/{id}/decision", bookingHandler.Decide)
		e.Router.PATCH("/api/v1/bookings/{id}/cancel", bookingHandler.Cancel)
		e.Router.GET("/api/v1/bookings/history", bookingHandler.History)
		e.Router.GET("/api/v1/bookings/revenue/status", bookingHandler.RevenueStatus)

		// Payment endpoints
		e.Router.POST("/api/v1/create-checkout-session", paymentHandler.CreateCheckoutSession)
		e.Router.PATCH("/api/v1/payment-success", paymentHandler.PaymentSuccess)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func startSidecar(cfg *config.Config, redisClient *redis.Client, payments *services.PaymentService) error {
	webhookHandler, err := handlers.NewWebhookHandler(payments, cfg.PayGate.HMACKey, cfg.PayGate.WebhookSecret)
	if err != nil {
		return err
	}

	limiter := security.NewRateLimiter(redisClient)

	sidecar := echo.New()
	sidecar.Use(limiter.AntiBotMiddleware())
	sidecar.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	sidecar.POST("/hooks/paygate", webhookHandler.PaymentSettled, limiter.WebhookRateLimit())

	go func() {
		if err := sidecar.Start(":" + cfg.MetricsPort); err != nil {
			slog.Error("sidecar server stopped", "error", err)
		}
	}()

	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
