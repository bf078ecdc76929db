package api

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/auth"
	"github.com/illegalcall/nutrition-navigator/internal/models"
	"github.com/illegalcall/nutrition-navigator/internal/pkg/supabase"
	"github.com/illegalcall/nutrition-navigator/internal/routeguard"
	"github.com/illegalcall/nutrition-navigator/internal/store"
)

const (
	minPasswordLen    = 6
	maxDisplayNameLen = 100
)

func (s *Server) handleSignup(c *fiber.Ctx) error {
	var req models.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return errorJSON(c, fiber.StatusBadRequest, "A valid email is required")
	}
	if len(req.Password) < minPasswordLen {
		return errorJSON(c, fiber.StatusBadRequest, "Password must be at least 6 characters")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = nameFromEmail(email)
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return errorJSON(c, fiber.StatusBadRequest, "Display name must be 100 characters or less")
	}

	s.logger.Info("Sign up attempt", "email", email)
	identity, err := s.auth.SignUp(email, req.Password, displayName)
	if err != nil {
		s.logger.Error("Sign up error", "error", err)
		return errorJSON(c, fiber.StatusBadRequest, s.detail("Sign up failed", err))
	}

	profile, err := s.profiles.Create(c.UserContext(), s.newProfile(identity.UID, identity.Email, displayName))
	if errors.Is(err, store.ErrAlreadyExists) {
		s.logger.Info("Profile already exists for user", "uid", identity.UID)
		return errorJSON(c, fiber.StatusConflict, "Profile already exists for this user")
	}
	if err != nil {
		s.logger.Error("Failed to create profile", "error", err, "uid", identity.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create profile")
	}

	s.logger.Info("Profile created successfully", "uid", profile.UID, "role", profile.Role)
	c.Status(fiber.StatusCreated)
	return s.startSession(c, profile)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	// Validate required fields
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email and password are required")
	}

	s.logger.Info("Authentication attempt", "email", req.Email)

	identity, err := s.auth.SignIn(strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, supabase.ErrInvalidCredentials) {
		return errorJSON(c, fiber.StatusUnauthorized, s.detail("Invalid credentials", err))
	}
	if err != nil {
		// Log the detailed error for server-side debugging
		s.logger.Error("Authentication error", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, s.detail("Authentication service error", err))
	}

	profile, err := s.loadProfile(c, identity.UID, identity.Email, identity.DisplayName)
	if err != nil {
		s.logger.Error("Failed to load profile", "error", err, "uid", identity.UID)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load profile")
	}

	s.logger.Info("User successfully authenticated", "uid", profile.UID)
	return s.startSession(c, profile)
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	routeguard.ClearCookies(c, s.cfg.Server.SecureCookies)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	return s.handleGetProfile(c)
}

// startSession issues a session token for profile and sets the session cookies.
func (s *Server) startSession(c *fiber.Ctx, profile models.Profile) error {
	token, err := auth.Issue(profile, s.cfg.JWT.Secret, s.cfg.JWT.Expiration)
	if err != nil {
		s.logger.Error("Failed to generate token", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	maxAge := int(s.cfg.JWT.Expiration.Seconds())
	c.Cookie(&fiber.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     auth.RoleCookie,
		Value:    string(profile.Role),
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(models.LoginResponse{
		Token:     token,
		TokenType: auth.TokenType,
		Profile:   models.NewProfileResponse(profile),
	})
}

func (s *Server) newProfile(uid, email, displayName string) models.Profile {
	if displayName == "" {
		displayName = nameFromEmail(email)
	}
	profile := models.DefaultProfile(uid, email, displayName)
	if s.cfg.Admin.IsAdminEmail(email) {
		profile.Role = models.RoleAdmin
	}
	return profile
}

// loadProfile returns the stored profile of uid, creating a default one when
// the identity has none yet.
func (s *Server) loadProfile(c *fiber.Ctx, uid, email, displayName string) (models.Profile, error) {
	ctx := c.UserContext()
	profile, err := s.profiles.Get(ctx, uid)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, err
	}

	s.logger.Info("No profile for identity; creating default", "uid", uid)
	profile, err = s.profiles.Create(ctx, s.newProfile(uid, email, displayName))
	if errors.Is(err, store.ErrAlreadyExists) {
		// Created concurrently by another request.
		return s.profiles.Get(ctx, uid)
	}
	return profile, err
}

func nameFromEmail(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
