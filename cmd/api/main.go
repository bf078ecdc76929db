package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/nutrition-navigator/internal/api"
	"github.com/illegalcall/nutrition-navigator/internal/config"
	"github.com/illegalcall/nutrition-navigator/internal/pkg/supabase"
	"github.com/illegalcall/nutrition-navigator/internal/vision"
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

	if err := db.CreateTables(ctx); err != nil {
		logger.Error("❌ Failed to create tables", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer
	producer, err := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff)
	if err != nil {
		logger.Error("❌ Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("✅ Connected to Kafka")

	authClient, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, logger)
	if err != nil {
		logger.Error("❌ Failed to initialize Supabase client", "error", err)
		os.Exit(1)
	}

	analyzer, err := vision.NewGeminiAnalyzer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		logger.Error("❌ Failed to initialize Gemini client", "error", err)
		os.Exit(1)
	}

	// Create and start server
	server, err := api.NewServer(cfg, db, producer, authClient, analyzer)
	if err != nil {
		logger.Error("❌ Failed to create server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Info("✅ Server listening", "addr", cfg.Server.Port)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
		if err := server.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}
}
