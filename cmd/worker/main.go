package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/nutrition-navigator/internal/config"
	"github.com/illegalcall/nutrition-navigator/internal/metrics"
	"github.com/illegalcall/nutrition-navigator/internal/stats"
	"github.com/illegalcall/nutrition-navigator/internal/worker"
	"github.com/illegalcall/nutrition-navigator/pkg/database"
	"github.com/illegalcall/nutrition-navigator/pkg/kafka"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg.Database.URL, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("❌ Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("✅ Connected to databases")

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.Group)
	if err != nil {
		logger.Error("❌ Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	logger.Info("✅ Connected to Kafka")

	// Monitoring endpoint, stopped with ctx.
	go func() {
		if err := metrics.Serve(ctx, cfg.Kafka.MetricsPort, logger); err != nil {
			logger.Error("❌ Metrics server error", "error", err)
		}
	}()

	// Create and start worker
	w := worker.NewWorker(cfg, stats.NewRecorder(db.Redis), consumer, logger)
	if err := w.Start(ctx); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
