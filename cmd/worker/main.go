// Package main runs the background worker: webhook archive uploads to S3 and
// the pending-order timeout sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlaspay/backend/config"
	"github.com/atlaspay/backend/internal/payments"
	"github.com/atlaspay/backend/internal/worker"
	"github.com/atlaspay/backend/pkg/database"
	"github.com/atlaspay/backend/pkg/queue"
	"github.com/atlaspay/backend/pkg/redis"
	"github.com/atlaspay/backend/pkg/storage"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store := payments.NewRepository(pool)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Archive.Bucket != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Bucket:          cfg.Archive.Bucket,
		}
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		jobQueue := queue.NewQueue(rdb.Client, logger)
		processor := worker.NewArchiveProcessor(jobQueue, s3Client, logger)
		go processor.Run(workerCtx)
		logger.Info("webhook archive worker started", zap.String("bucket", cfg.Archive.Bucket))
	} else {
		logger.Warn("webhook archive disabled (AWS_S3_WEBHOOK_ARCHIVE_BUCKET not set)")
	}

	sweeper := worker.NewSweeper(store, cfg.Pending.TTL, time.Minute, logger)
	go sweeper.Run(workerCtx)
	logger.Info("timeout sweeper started", zap.Duration("ttl", cfg.Pending.TTL))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
