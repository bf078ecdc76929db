package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jwtware "github.com/gofiber/jwt/v3"
	jwtv4 "github.com/golang-jwt/jwt/v4"

	"github.com/illegalcall/nutrition-navigator/internal/auth"
	"github.com/illegalcall/nutrition-navigator/internal/config"
	"github.com/illegalcall/nutrition-navigator/internal/metrics"
	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/openfoodfacts"
	"github.com/illegalcall/nutrition-navigator/internal/pkg/supabase"
	"github.com/illegalcall/nutrition-navigator/internal/routeguard"
	"github.com/illegalcall/nutrition-navigator/internal/stats"
	"github.com/illegalcall/nutrition-navigator/internal/storage"
	"github.com/illegalcall/nutrition-navigator/internal/store"
	"github.com/illegalcall/nutrition-navigator/internal/vision"
	"github.com/illegalcall/nutrition-navigator/pkg/database"
	"github.com/illegalcall/nutrition-navigator/pkg/kafka"
)

// ProductLookup finds products by barcode.
type ProductLookup interface {
	Lookup(ctx context.Context, barcode string) (openfoodfacts.Product, error)
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	db        *database.Clients
	logger    *slog.Logger
	publisher *kafka.Publisher
	auth      supabase.Authenticator
	analyzer  vision.Analyzer
	storage   *storage.LocalStorage
	products  ProductLookup
	profiles  *store.Profiles
	foodLogs  *store.FoodLogs
	stats     *stats.Recorder
}

func NewServer(cfg *config.Config, db *database.Clients, producer sarama.SyncProducer,
	authenticator supabase.Authenticator, analyzer vision.Analyzer) (*Server, error) {
	appLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize storage
	localStorage, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app := fiber.New(fiber.Config{
		// multipart bodies carry the photo plus form overhead
		BodyLimit:    int(cfg.Storage.MaxSize) + 1<<20,
		ErrorHandler: errorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowCredentials: cfg.Server.AllowedOrigins != "*",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.MaxRequests,
		Expiration: cfg.Server.RequestTimeout,
	}))

	server := &Server{
		app:       app,
		cfg:       cfg,
		db:        db,
		logger:    appLogger,
		publisher: kafka.NewPublisher(producer, cfg.Kafka.Topic),
		auth:      authenticator,
		analyzer:  analyzer,
		storage:   localStorage,
		products:  openfoodfacts.NewClient(cfg.OpenFoodFacts, db.Redis, appLogger),
		profiles:  store.NewProfiles(db.DB),
		foodLogs:  store.NewFoodLogs(db.DB),
		stats:     stats.NewRecorder(db.Redis),
	}

	// Routes
	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	s.app.Use(routeguard.New(routeguard.Config{
		Secret:        s.cfg.JWT.Secret,
		SecureCookies: s.cfg.Server.SecureCookies,
	}))

	// Monitoring Route.
	s.app.Get("/metrics", metrics.Handler())
	s.app.Static(strings.TrimSuffix(storage.URLPrefix, "/"), s.storage.Dir())

	api := s.app.Group("/api")

	// Public routes
	api.Get("/health", s.handleHealth)
	api.Post("/auth/signup", s.handleSignup)
	api.Post("/auth/login", s.handleLogin)
	api.Post("/auth/logout", s.handleLogout)

	// Protected routes
	protected := api.Group("", s.requireSession())
	protected.Get("/auth/me", s.handleMe)
	protected.Get("/profile", s.handleGetProfile)
	protected.Patch("/profile", s.handleUpdateProfile)
	protected.Post("/food-logs", s.handleCreateFoodLog)
	protected.Get("/food-logs", s.handleListFoodLogs)
	protected.Post("/ai/analyze-image", s.handleAnalyzeImage)
	// Found products are cached in Redis by the lookup client; misses and
	// upstream failures must not be.
	protected.Get("/products/:barcode?", s.handleLookupProduct)

	admin := protected.Group("/admin", s.requireAdmin)
	admin.Get("/stats", s.handleAdminStats)
	admin.Get("/export", s.handleAdminExport)

	api.Use(func(c *fiber.Ctx) error {
		return errorJSON(c, fiber.StatusNotFound, "Not found")
	})

	// Frontend build, served behind the route guard.
	if info, err := os.Stat(s.cfg.Server.StaticDir); err == nil && info.IsDir() {
		s.app.Static("/", s.cfg.Server.StaticDir)
	}
}

func (s *Server) requireSession() fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:  []byte(s.cfg.JWT.Secret),
		TokenLookup: "header:Authorization,cookie:" + auth.SessionCookie,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return errorJSON(c, fiber.StatusUnauthorized, "Missing or invalid session")
		},
	})
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests up to timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// sessionUser is the caller as identified by the verified session token.
type sessionUser struct {
	UID   string
	Email string
	Role  models.Role
}

func currentUser(c *fiber.Ctx) (sessionUser, bool) {
	token, ok := c.Locals("user").(*jwtv4.Token)
	if !ok || token == nil {
		return sessionUser{}, false
	}
	claims, ok := token.Claims.(jwtv4.MapClaims)
	if !ok {
		return sessionUser{}, false
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return sessionUser{}, false
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return sessionUser{UID: uid, Email: email, Role: models.Role(role)}, true
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// errorHandler renders errors that escaped a handler in the API error format.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	if code == fiber.StatusRequestEntityTooLarge {
		message = "Photo is too large"
	}
	return errorJSON(c, code, message)
}

// detail appends err to message outside production.
func (s *Server) detail(message string, err error) string {
	if s.cfg.Server.IsProduction() || err == nil {
		return message
	}
	return fmt.Sprintf("%s: %v", message, err)
}
