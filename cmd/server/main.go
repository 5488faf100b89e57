// Package main runs the payment service HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlaspay/backend/config"
	"github.com/atlaspay/backend/internal/auth"
	"github.com/atlaspay/backend/internal/checkout"
	"github.com/atlaspay/backend/internal/middleware"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/pending"
	"github.com/atlaspay/backend/internal/provider"
	"github.com/atlaspay/backend/internal/webhook"
	"github.com/atlaspay/backend/pkg/database"
	"github.com/atlaspay/backend/pkg/queue"
	"github.com/atlaspay/backend/pkg/redis"
	"github.com/atlaspay/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store := payments.NewRepository(pool)

	var index pending.Index
	if cfg.Pending.Backend == "redis" {
		index = pending.NewRedisIndex(rdb.Client, cfg.Pending.TTL, logger)
		logger.Info("pending index: redis", zap.Duration("ttl", cfg.Pending.TTL))
	} else {
		index = pending.NewMemoryIndex(cfg.Pending.TTL, store, logger)
		logger.Info("pending index: memory", zap.Duration("ttl", cfg.Pending.TTL))
	}

	providerClient := provider.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		cfg.Provider.StoreID,
		cfg.Provider.RequestTimeout,
		logger,
	)

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(cfg.Clients, jwtService, logger)

	// Checkout
	initiator := checkout.NewInitiator(providerClient, store, index, logger)
	checkoutHandler := checkout.NewHandler(initiator, logger)

	// Webhook reconciliation
	reconciler := webhook.NewReconciler(store, index, jobQueue, logger)
	webhookHandler := webhook.NewHandler(reconciler, cfg.Provider.WebhookSecret, logger)
	if cfg.Provider.WebhookSecret == "" {
		logger.Warn("webhook signature verification disabled (PROVIDER_WEBHOOK_SECRET not set)")
	}

	// Status / verify
	gate := payments.NewRedisGate(rdb.Client, cfg.Pending.VerifyGateTTL, logger)
	paymentsHandler := payments.NewHandler(store, providerClient, gate, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Service tokens (public)
	router.POST("/auth/token", authHandler.Token)

	// Webhooks (no JWT; authenticated by HMAC signature when configured)
	router.POST("/webhooks/payment", webhookHandler.Receive)

	// Protected API (service token required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.RequireScope("payments"))
	{
		api.POST("/checkout", checkoutHandler.Create)
		api.GET("/payment-status", paymentsHandler.GetStatus)
		api.GET("/verify", paymentsHandler.Verify)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
