package models

import (
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Profile represents a user profile in the system
type Profile struct {
	UID         string    `json:"uid" db:"uid"` // matches the auth identity id
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Role        Role      `json:"role" db:"role"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// DefaultProfile is used when an authenticated identity has no stored profile yet.
func DefaultProfile(uid, email, displayName string) Profile {
	return Profile{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		Role:        RoleClient,
	}
}

// ProfileResponse is the profile as returned to the client
type ProfileResponse struct {
	Profile
	IsAdmin bool `json:"is_admin"`
}

func NewProfileResponse(p Profile) ProfileResponse {
	return ProfileResponse{Profile: p, IsAdmin: p.IsAdmin()}
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}
