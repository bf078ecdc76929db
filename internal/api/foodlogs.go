package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/metrics"
	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/store"
)

func (s *Server) handleCreateFoodLog(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Missing or invalid session")
	}

	var req models.CreateFoodLogRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	log, err := req.Normalize()
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Message,
			"field": verr.Field,
		})
	}
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	log.UserID = user.UID

	if log.EntryMethod == models.EntryBarcode && len(log.APIData) == 0 {
		s.attachProduct(c, &log)
	}

	// The owner's profile row must exist before the log references it.
	if _, err := s.loadProfile(c, user.UID, user.Email, ""); err != nil {
		s.logger.Error("Failed to load profile", "error", err, "uid", user.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load profile")
	}

	stored, err := s.foodLogs.Add(c.UserContext(), log)
	if err != nil {
		s.logger.Error("Failed to add food log", "error", err, "uid", user.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to add food log")
	}
	metrics.FoodLogsCreated.WithLabelValues(string(stored.EntryMethod)).Inc()

	// Stats are derived; a lost event must not lose the entry.
	if err := s.publisher.Publish(stored.UserID, models.NewFoodLogEvent(stored)); err != nil {
		s.logger.Error("Failed to publish food log event", "error", err, "id", stored.ID)
	}

	s.logger.Info("Food log added", "id", stored.ID, "uid", stored.UserID, "method", stored.EntryMethod)
	return c.Status(fiber.StatusCreated).JSON(stored)
}

// attachProduct fills api_data and missing nutrition from the product database.
// Lookup failures leave the entry as the client sent it.
func (s *Server) attachProduct(c *fiber.Ctx, log *models.FoodLog) {
	product, err := s.products.Lookup(c.UserContext(), *log.Barcode)
	if err != nil {
		s.logger.Info("No product data for barcode entry", "barcode", *log.Barcode, "error", err)
		return
	}
	log.APIData = models.JSONData(product.Raw)
	if log.Nutrition.IsEmpty() {
		log.Nutrition = product.Nutrition
	}
}

func (s *Server) handleListFoodLogs(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Missing or invalid session")
	}

	count := store.ClampPageSize(c.QueryInt("count", 0), s.cfg.FoodLog.DefaultPageSize, s.cfg.FoodLog.MaxPageSize)
	cursor, err := store.DecodeCursor(c.Query("cursor"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid cursor")
	}

	page, err := s.foodLogs.List(c.UserContext(), user.UID, count, cursor)
	if err != nil {
		s.logger.Error("Failed to retrieve food logs", "error", err, "uid", user.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to retrieve food logs")
	}
	return c.JSON(page)
}
