package routeguard

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/nutrition-navigator/internal/auth"
	"github.com/illegalcall/nutrition-navigator/internal/models"
)

var (
	protectedRoutes = []string{"/dashboard", "/admin/dashboard", "/profile", "/settings", "/my-food-log", "/reports"}
	adminRoutes     = []string{"/admin/dashboard"}
	authRoutes      = []string{"/login", "/signup"}

	// Never guarded: API, uploaded photos, metrics and frontend assets.
	passThroughPrefixes = []string{"/api", "/uploads", "/metrics", "/_next", "/favicon.ico"}
)

// Session is what the guard knows about the caller.
type Session struct {
	Authenticated bool
	Role          models.Role
}

func hasPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Guarded reports whether the page guard applies to p.
func Guarded(p string) bool {
	if hasPrefix(p, passThroughPrefixes) {
		return false
	}
	return !strings.Contains(path.Base(p), ".")
}

// Decide returns where to redirect a request for p, or "" to let it through.
func Decide(p string, s Session) string {
	if !Guarded(p) {
		return ""
	}

	if hasPrefix(p, authRoutes) {
		if s.Authenticated {
			return "/dashboard"
		}
		return ""
	}

	if hasPrefix(p, protectedRoutes) {
		if !s.Authenticated {
			return "/login?" + url.Values{"redirectedFrom": {p}}.Encode()
		}
		if hasPrefix(p, adminRoutes) && s.Role != models.RoleAdmin {
			return "/dashboard"
		}
		return ""
	}

	if p == "/" {
		if s.Authenticated {
			return "/dashboard"
		}
		return "/login"
	}
	return ""
}

type Config struct {
	Secret        string
	SecureCookies bool
}

// New returns a fiber middleware redirecting page requests per Decide. The
// session cookie must verify; a cookie that does not is cleared.
func New(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := c.Path()
		if !Guarded(p) {
			return c.Next()
		}

		var session Session
		if token := c.Cookies(auth.SessionCookie); token != "" {
			claims, err := auth.Parse(token, cfg.Secret)
			if err != nil {
				ClearCookies(c, cfg.SecureCookies)
			} else {
				session = Session{Authenticated: true, Role: claims.Role}
			}
		}

		if target := Decide(p, session); target != "" {
			return c.Redirect(target, fiber.StatusFound)
		}
		return c.Next()
	}
}

// ClearCookies expires the session and role cookies.
func ClearCookies(c *fiber.Ctx, secure bool) {
	for _, name := range []string{auth.SessionCookie, auth.RoleCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HTTPOnly: name == auth.SessionCookie,
			Secure:   secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}
