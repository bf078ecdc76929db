package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type Clients struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

func NewClients(ctx context.Context, dbURL string, redisOpts *redis.Options) (*Clients, error) {
	// Connect to PostgreSQL
	db, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Clients{
		DB:    db,
		Redis: redisClient,
	}, nil
}

func (c *Clients) Close() error {
	redisErr := c.Redis.Close()
	if err := c.DB.Close(); err != nil {
		return err
	}
	return redisErr
}

// Ping returns the error of every backend that did not answer, keyed by name.
func (c *Clients) Ping(ctx context.Context) map[string]error {
	failures := map[string]error{}
	if err := c.DB.PingContext(ctx); err != nil {
		failures["postgres"] = err
	}
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		failures["redis"] = err
	}
	return failures
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	uid TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'client' CHECK (role IN ('admin', 'client')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS food_logs (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES profiles(uid) ON DELETE CASCADE,
	food_name TEXT NOT NULL,
	portion_size TEXT NOT NULL,
	entry_method TEXT NOT NULL CHECK (entry_method IN ('manual', 'ai', 'barcode')),
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	image_url TEXT,
	barcode TEXT,
	api_data JSONB,
	calories DOUBLE PRECISION,
	protein DOUBLE PRECISION,
	carbs DOUBLE PRECISION,
	fat DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS food_logs_user_timestamp_idx
	ON food_logs (user_id, timestamp DESC, id DESC);
`

// CreateTables ensures the profiles and food_logs tables exist.
func (c *Clients) CreateTables(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	slog.Info("✅ Profiles and food_logs tables are ready!")
	return nil
}
