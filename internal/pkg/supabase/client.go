package supabase

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoIdentity         = errors.New("auth provider returned no user")
)

// Identity is the part of an auth user the application cares about.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// Authenticator is the managed authentication backend.
type Authenticator interface {
	SignUp(email, password, displayName string) (Identity, error)
	SignIn(email, password string) (Identity, error)
	UpdateDisplayName(uid, displayName string) error
}

// Client implements Authenticator on top of Supabase GoTrue.
type Client struct {
	auth   gotrue.Client
	logger *slog.Logger
}

// extractProjectRef extracts just the project reference ID from a Supabase URL
// From: akrqbuajqkirdekonpzy.supabase.co
// To: akrqbuajqkirdekonpzy
func extractProjectRef(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	parts := strings.Split(url, ".")
	return parts[0]
}

// truncateKey keeps enough of an API key to recognize it in logs.
func truncateKey(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	return ""
}

// NewClient initializes the Supabase authentication client and checks the connection.
func NewClient(supabaseURL, supabaseKey string, logger *slog.Logger) (*Client, error) {
	if supabaseURL == "" || supabaseKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	projectRef := extractProjectRef(supabaseURL)
	logger.Info("Initializing Supabase client", "project_ref", projectRef, "key", truncateKey(supabaseKey))

	client := gotrue.New(projectRef, supabaseKey)
	if _, err := client.GetSettings(); err != nil {
		return nil, fmt.Errorf("failed to connect to Supabase: %w", err)
	}

	return &Client{auth: client, logger: logger}, nil
}

func (c *Client) SignUp(email, password, displayName string) (Identity, error) {
	resp, err := c.auth.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     map[string]interface{}{"display_name": displayName},
	})
	if err != nil {
		return Identity{}, fmt.Errorf("sign up failed: %w", err)
	}

	// With autoconfirm on, the user only comes back inside the session.
	user := resp.User
	if user.ID == uuid.Nil {
		user = resp.Session.User
	}
	if user.ID == uuid.Nil {
		return Identity{}, ErrNoIdentity
	}

	c.logger.Info("Supabase user created", "uid", user.ID.String())
	return identityFromUser(user, displayName), nil
}

func (c *Client) SignIn(email, password string) (Identity, error) {
	res, err := c.auth.SignInWithEmailPassword(email, password)
	if err != nil {
		c.logger.Warn("Supabase sign in failed", "email", email, "error", err)
		if code := statusCode(err); code == http.StatusBadRequest || code == http.StatusUnauthorized {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return Identity{}, fmt.Errorf("sign in failed: %w", err)
	}
	if res == nil || res.AccessToken == "" {
		return Identity{}, ErrInvalidCredentials
	}
	if res.User.ID == uuid.Nil {
		return Identity{}, ErrNoIdentity
	}
	return identityFromUser(res.User, ""), nil
}

// UpdateDisplayName mirrors the profile name into the user metadata.
func (c *Client) UpdateDisplayName(uid, displayName string) error {
	id, err := uuid.Parse(uid)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", uid, err)
	}
	_, err = c.auth.AdminUpdateUser(types.AdminUpdateUserRequest{
		UserID:       id,
		UserMetadata: map[string]interface{}{"display_name": displayName},
	})
	if err != nil {
		return fmt.Errorf("failed to update user metadata: %w", err)
	}
	return nil
}

// statusCode recovers the HTTP status from a GoTrue error, which the client
// only reports as "response status code <n>: <body>". Zero means the request
// never got a response.
func statusCode(err error) int {
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &code); scanErr != nil {
		return 0
	}
	return code
}

func identityFromUser(user types.User, displayName string) Identity {
	if displayName == "" {
		if name, ok := user.UserMetadata["display_name"].(string); ok {
			displayName = name
		}
	}
	return Identity{
		UID:         user.ID.String(),
		Email:       user.Email,
		DisplayName: displayName,
	}
}
