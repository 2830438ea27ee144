package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticket-gate/config"
	"ticket-gate/handlers"
	"ticket-gate/monitoring"
	"ticket-gate/security"
	"ticket-gate/services"
	"ticket-gate/store"
	"ticket-gate/utils"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize MySQL
	sqlDB, err := sql.Open("mysql", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := sqlDB.PingContext(context.Background()); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	db := store.NewSQLStore(sqlDB)

	// Initialize PubNub
	var notifier services.Notifier
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	} else {
		slog.Warn("PubNub keys not configured, notifications disabled")
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
	}

	// Initialize services
	lockService := services.NewLockService(redisClient, cfg.LockRetryInterval, monitor)
	stockService := services.NewStockService(redisClient, lockService, db,
		cfg.StockCacheTTL, cfg.LockWaitTimeout, cfg.LockLeaseTimeout, monitor)
	queueService := services.NewQueueService(redisClient, lockService, db, db, notifier, cfg, monitor)
	commandService := services.NewCommandService(stockService, queueService, db, db, notifier, cfg, monitor)
	reaperService := services.NewReaperService(redisClient, stockService, db, db, db, cfg, monitor)

	// Start background workers
	commandService.Start()
	reaperService.Start()
	go queueService.RestoreQueueState(context.Background())

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(queueService)
	reservationHandler := handlers.NewReservationHandler(commandService, db)
	adminHandler := handlers.NewAdminHandler(queueService, stockService, commandService)
	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateLimitWindow)

	e := echo.New()

	// Queue endpoints
	queueGroup := e.Group("/api/v1/queue", rateLimiter.AntiBotMiddleware())
	queueGroup.POST("/enter", queueHandler.EnterQueue, rateLimiter.QueueRateLimit())
	queueGroup.GET("/position", queueHandler.GetPosition)
	queueGroup.POST("/leave", queueHandler.LeaveQueue)
	e.GET("/api/v1/events/:eventId/queue", queueHandler.GetStatus)

	// Reservation endpoints
	e.POST("/api/v1/reservations", reservationHandler.CreateReservation)
	e.GET("/api/v1/reservations/:reservationId", reservationHandler.GetReservation)
	e.POST("/api/v1/reservations/:reservationId/confirm", reservationHandler.ConfirmReservation)
	e.POST("/api/v1/reservations/:reservationId/cancel", reservationHandler.CancelReservation)

	// Admin endpoints
	e.POST("/api/v1/admin/events/:eventId/queue/toggle", adminHandler.ToggleQueue)
	e.POST("/api/v1/admin/events/:eventId/admit", adminHandler.AdmitNext)
	e.GET("/api/v1/admin/stock/:ticketTypeId", adminHandler.GetStock)
	e.POST("/api/v1/admin/stock/:ticketTypeId/initialize", adminHandler.InitializeStock)
	e.POST("/api/v1/admin/stock/:ticketTypeId/reconcile", adminHandler.ReconcileStock)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		if err := sqlDB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{"status": "healthy"})
	})

	if cfg.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	log.Println("Server routes registered")

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Printf("Shutdown signal received: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	commandService.Shutdown()
	reaperService.Shutdown()

	log.Println("Shutdown complete")
	return nil
}
