package api

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/store"
)

// handleGetProfile returns the caller's profile, creating the default one if needed.
func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Missing or invalid session")
	}

	profile, err := s.loadProfile(c, user.UID, user.Email, "")
	if err != nil {
		s.logger.Error("Failed to load profile", "error", err, "uid", user.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load profile")
	}
	return c.JSON(models.NewProfileResponse(profile))
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Missing or invalid session")
	}

	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Display name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return errorJSON(c, fiber.StatusBadRequest, "Display name must be 100 characters or less")
	}

	profile, err := s.profiles.UpdateDisplayName(c.UserContext(), user.UID, name)
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Profile not found")
	}
	if err != nil {
		s.logger.Error("Failed to update profile", "error", err, "uid", user.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to update profile")
	}

	if err := s.auth.UpdateDisplayName(user.UID, name); err != nil {
		s.logger.Warn("Failed to mirror display name to auth provider", "error", err, "uid", user.UID)
	}

	s.logger.Info("Profile updated", "uid", user.UID)
	return c.JSON(models.NewProfileResponse(profile))
}
