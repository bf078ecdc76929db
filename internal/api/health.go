package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	failures := s.db.Ping(ctx)
	if len(failures) == 0 {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	details := fiber.Map{}
	for name, err := range failures {
		s.logger.Error("Health check failed", "component", name, "error", err)
		details[name] = s.detail("unavailable", err)
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"status": "unavailable",
		"failed": details,
	})
}
