package routeguard

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/nutrition-navigator/internal/auth"
	"github.com/illegalcall/nutrition-navigator/internal/models"
)

func TestDecide(t *testing.T) {
	anonymous := Session{}
	client := Session{Authenticated: true, Role: models.RoleClient}
	admin := Session{Authenticated: true, Role: models.RoleAdmin}

	tests := []struct {
		name    string
		path    string
		session Session
		want    string
	}{
		{"login anonymous", "/login", anonymous, ""},
		{"login signed in", "/login", client, "/dashboard"},
		{"signup signed in", "/signup", admin, "/dashboard"},
		{"dashboard anonymous", "/dashboard", anonymous, "/login?redirectedFrom=%2Fdashboard"},
		{"nested protected anonymous", "/my-food-log/week", anonymous, "/login?redirectedFrom=%2Fmy-food-log%2Fweek"},
		{"dashboard client", "/dashboard", client, ""},
		{"admin page client", "/admin/dashboard", client, "/dashboard"},
		{"admin page anonymous", "/admin/dashboard", anonymous, "/login?redirectedFrom=%2Fadmin%2Fdashboard"},
		{"admin page admin", "/admin/dashboard", admin, ""},
		{"root anonymous", "/", anonymous, "/login"},
		{"root signed in", "/", client, "/dashboard"},
		{"public page", "/about", anonymous, ""},
		{"api", "/api/food-logs", anonymous, ""},
		{"uploads", "/uploads/meal-1.jpg", anonymous, ""},
		{"metrics", "/metrics", anonymous, ""},
		{"next assets", "/_next/static/chunk.js", anonymous, ""},
		{"favicon", "/favicon.ico", anonymous, ""},
		{"file under protected prefix", "/reports/summary.pdf", anonymous, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.path, tt.session))
		})
	}
}

func setupGuardedApp() *fiber.App {
	app := fiber.New()
	app.Use(New(Config{Secret: "test-secret"}))
	app.Get("/*", func(c *fiber.Ctx) error {
		return c.SendString("page " + c.Path())
	})
	return app
}

func sessionToken(t *testing.T, role models.Role) string {
	token, err := auth.Issue(models.Profile{UID: "user-1", Email: "sam@example.com", Role: role}, "test-secret", time.Hour)
	require.NoError(t, err)
	return token
}

func TestMiddlewareRedirectsAnonymous(t *testing.T) {
	app := setupGuardedApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?redirectedFrom=%2Fdashboard", resp.Header.Get("Location"))
}

func TestMiddlewareUsesVerifiedRole(t *testing.T) {
	app := setupGuardedApp()

	// A forged role cookie does not grant admin pages.
	req := httptest.NewRequest("GET", "/admin/dashboard", nil)
	req.Header.Set("Cookie", "session="+sessionToken(t, models.RoleClient)+"; user_role=admin")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	req = httptest.NewRequest("GET", "/admin/dashboard", nil)
	req.Header.Set("Cookie", "session="+sessionToken(t, models.RoleAdmin))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareClearsInvalidSession(t *testing.T) {
	app := setupGuardedApp()

	req := httptest.NewRequest("GET", "/settings", nil)
	req.Header.Set("Cookie", "session=forged.token.value")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login"))

	cleared := map[string]bool{}
	for _, c := range resp.Cookies() {
		if c.Value == "" {
			cleared[c.Name] = true
		}
	}
	assert.True(t, cleared[auth.SessionCookie])
	assert.True(t, cleared[auth.RoleCookie])
}

func TestMiddlewareSkipsAPI(t *testing.T) {
	app := setupGuardedApp()

	req := httptest.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("Cookie", "session=forged.token.value")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}
