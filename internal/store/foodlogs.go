package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/nutrition-navigator/internal/models"
)

const foodLogColumns = `id, user_id, food_name, portion_size, entry_method, timestamp,
	image_url, barcode, api_data, calories, protein, carbs, fat`

// FoodLogs is the data-access layer for food log entries.
type FoodLogs struct {
	db    *sqlx.DB
	newID func() string
}

func NewFoodLogs(db *sqlx.DB) *FoodLogs {
	return &FoodLogs{db: db, newID: uuid.NewString}
}

// ClampPageSize applies the default page size to non-positive counts and caps the rest.
func ClampPageSize(count, defaultSize, maxSize int) int {
	if count <= 0 {
		count = defaultSize
	}
	if count > maxSize {
		count = maxSize
	}
	if count < 1 {
		count = 1
	}
	return count
}

// Add stores a new entry for log.UserID. The id and timestamp are assigned here,
// whatever the caller put in them.
func (s *FoodLogs) Add(ctx context.Context, log models.FoodLog) (models.FoodLog, error) {
	if log.UserID == "" {
		return models.FoodLog{}, fmt.Errorf("user ID is required to add a food log entry")
	}
	log.ID = s.newID()

	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO food_logs (id, user_id, food_name, portion_size, entry_method,
			image_url, barcode, api_data, calories, protein, carbs, fat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING timestamp`,
		log.ID, log.UserID, log.FoodName, log.PortionSize, log.EntryMethod,
		log.ImageURL, log.Barcode, log.APIData,
		log.Calories, log.Protein, log.Carbs, log.Fat,
	).Scan(&log.Timestamp)
	if err != nil {
		return models.FoodLog{}, fmt.Errorf("failed to add food log entry: %w", err)
	}
	return log, nil
}

// List returns up to count entries of userID, newest first, strictly after the cursor.
func (s *FoodLogs) List(ctx context.Context, userID string, count int, after *Cursor) (models.FoodLogPage, error) {
	if userID == "" {
		return models.FoodLogPage{}, fmt.Errorf("user ID is required to get food logs")
	}

	// One extra row tells us whether another page exists.
	limit := count + 1
	logs := []models.FoodLog{}
	var err error
	if after == nil {
		err = s.db.SelectContext(ctx, &logs,
			"SELECT "+foodLogColumns+` FROM food_logs WHERE user_id = $1
			ORDER BY timestamp DESC, id DESC LIMIT $2`,
			userID, limit)
	} else {
		err = s.db.SelectContext(ctx, &logs,
			"SELECT "+foodLogColumns+` FROM food_logs WHERE user_id = $1 AND (timestamp, id) < ($2, $3)
			ORDER BY timestamp DESC, id DESC LIMIT $4`,
			userID, after.Timestamp, after.ID, limit)
	}
	if err != nil {
		return models.FoodLogPage{}, fmt.Errorf("failed to retrieve food logs: %w", err)
	}

	page := models.FoodLogPage{Logs: logs}
	if len(logs) > count {
		page.Logs = logs[:count]
		page.HasMore = true
		last := page.Logs[len(page.Logs)-1]
		page.NextCursor = Cursor{Timestamp: last.Timestamp, ID: last.ID}.Encode()
	}
	return page, nil
}

func (s *FoodLogs) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM food_logs"); err != nil {
		return 0, fmt.Errorf("failed to count food logs: %w", err)
	}
	return n, nil
}

// CountSince counts entries of every user created at or after since.
func (s *FoodLogs) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM food_logs WHERE timestamp >= $1", since); err != nil {
		return 0, fmt.Errorf("failed to count food logs: %w", err)
	}
	return n, nil
}

// ExportRow is a food log joined with its owner's email.
type ExportRow struct {
	models.FoodLog
	Email string `db:"email"`
}

// ExportAll streams every user's entries, newest first, into fn.
func (s *FoodLogs) ExportAll(ctx context.Context, fn func(ExportRow) error) error {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT f.id, f.user_id, COALESCE(p.email, '') AS email, f.food_name, f.portion_size,
			f.entry_method, f.timestamp, f.barcode, f.calories, f.protein, f.carbs, f.fat
		FROM food_logs f LEFT JOIN profiles p ON p.uid = f.user_id
		ORDER BY f.timestamp DESC, f.id DESC`)
	if err != nil {
		return fmt.Errorf("failed to export food logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row ExportRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("failed to scan food log: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
