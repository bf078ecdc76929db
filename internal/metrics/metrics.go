package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Label values shared by the lookup and analysis counters.
const (
	ResultFound    = "found"
	ResultCached   = "cached"
	ResultNotFound = "not_found"
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultSkipped  = "skipped"
)

var (
	FoodLogsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrition_food_logs_created_total",
		Help: "Food log entries stored, by entry method.",
	}, []string{"method"})

	ProductLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrition_product_lookups_total",
		Help: "Barcode product lookups, by result.",
	}, []string{"result"})

	ImageAnalyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrition_image_analyses_total",
		Help: "Meal photo analyses, by result.",
	}, []string{"result"})

	WorkerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrition_worker_events_total",
		Help: "Food log events handled by the stats worker, by result.",
	}, []string{"result"})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// NewApp returns an app serving only /metrics, for processes without an HTTP API.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", Handler())
	return app
}

// Serve runs NewApp on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	app := NewApp()
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()
	logger.Info("✅ Metrics listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}
