package api

import (
	"encoding/csv"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/stats"
	"github.com/illegalcall/nutrition-navigator/internal/store"
)

var exportHeader = []string{
	"user_id", "email", "food_name", "portion_size", "entry_method", "timestamp",
	"calories", "protein", "carbs", "fat", "barcode",
}

// requireAdmin checks the stored role, so a demotion applies before the session expires.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Missing or invalid session")
	}

	profile, err := s.profiles.Get(c.UserContext(), user.UID)
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, fiber.StatusForbidden, "Admin access required")
	}
	if err != nil {
		s.logger.Error("Failed to load profile", "error", err, "uid", user.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load profile")
	}
	if !profile.IsAdmin() {
		return errorJSON(c, fiber.StatusForbidden, "Admin access required")
	}
	return c.Next()
}

func (s *Server) handleAdminStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	now := time.Now().UTC()

	totalUsers, err := s.profiles.Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count users", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load stats")
	}
	totalEntries, err := s.foodLogs.Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count food logs", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load stats")
	}

	daily, err := s.stats.Day(ctx, now)
	if err != nil {
		s.logger.Warn("Daily aggregates unavailable", "error", err)
		daily = stats.Daily{Date: stats.Date(now), ByMethod: map[string]int{}}
	}
	if !daily.Recorded {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		entries, err := s.foodLogs.CountSince(ctx, midnight)
		if err != nil {
			s.logger.Error("Failed to count today's food logs", "error", err)
			return errorJSON(c, fiber.StatusInternalServerError, "Failed to load stats")
		}
		daily.Entries = entries
	}

	return c.JSON(models.AdminStats{
		TotalUsers:           totalUsers,
		TotalEntries:         totalEntries,
		EntriesToday:         daily.Entries,
		EntriesTodayByMethod: daily.ByMethod,
		ActiveUsersToday:     daily.ActiveUsers,
		Date:                 daily.Date,
	})
}

func (s *Server) handleAdminExport(c *fiber.Ctx) error {
	filename := "food-logs-" + stats.Date(time.Now()) + ".csv"
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")

	w := csv.NewWriter(c)
	if err := w.Write(exportHeader); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to export food logs")
	}

	err := s.foodLogs.ExportAll(c.UserContext(), func(row store.ExportRow) error {
		barcode := ""
		if row.Barcode != nil {
			barcode = *row.Barcode
		}
		return w.Write([]string{
			row.UserID,
			row.Email,
			row.FoodName,
			row.PortionSize,
			string(row.EntryMethod),
			row.Timestamp.UTC().Format(time.RFC3339),
			formatOptional(row.Calories),
			formatOptional(row.Protein),
			formatOptional(row.Carbs),
			formatOptional(row.Fat),
			barcode,
		})
	})
	if err == nil {
		w.Flush()
		err = w.Error()
	}
	if err != nil {
		s.logger.Error("Failed to export food logs", "error", err)
		c.Response().ResetBody()
		c.Response().Header.Del(fiber.HeaderContentDisposition)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to export food logs")
	}
	return nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
