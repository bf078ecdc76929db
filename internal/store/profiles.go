package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/nutrition-navigator/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

const profileColumns = `uid, email, display_name, role, created_at`

// Profiles is the data-access layer for user profiles.
type Profiles struct {
	db *sqlx.DB
}

func NewProfiles(db *sqlx.DB) *Profiles {
	return &Profiles{db: db}
}

func (s *Profiles) Get(ctx context.Context, uid string) (models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p, "SELECT "+profileColumns+" FROM profiles WHERE uid = $1", uid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Create inserts a profile. CreatedAt is assigned by the database.
func (s *Profiles) Create(ctx context.Context, p models.Profile) (models.Profile, error) {
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO profiles (uid, email, display_name, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO NOTHING RETURNING created_at`,
		p.UID, p.Email, p.DisplayName, p.Role,
	).Scan(&p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrAlreadyExists
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

func (s *Profiles) UpdateDisplayName(ctx context.Context, uid, displayName string) (models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRowxContext(ctx,
		"UPDATE profiles SET display_name = $1 WHERE uid = $2 RETURNING "+profileColumns,
		displayName, uid,
	).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}

func (s *Profiles) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM profiles"); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}
