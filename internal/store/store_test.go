package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/nutrition-navigator/internal/models"
)

var logColumns = []string{
	"id", "user_id", "food_name", "portion_size", "entry_method", "timestamp",
	"image_url", "barcode", "api_data", "calories", "protein", "carbs", "fat",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC)
	c := Cursor{Timestamp: ts, ID: "6f1c2a9e-3b7d-4c1e-9a55-2f0d7e8b1c11"}

	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, ts.Equal(decoded.Timestamp))
	assert.Equal(t, c.ID, decoded.ID)

	empty, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	for _, bad := range []string{"!!!", "bm8tc2VwYXJhdG9y", "bm90LWEtdGltZXxhYmM"} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 10, ClampPageSize(0, 10, 50))
	assert.Equal(t, 10, ClampPageSize(-3, 10, 50))
	assert.Equal(t, 5, ClampPageSize(5, 10, 50))
	assert.Equal(t, 50, ClampPageSize(500, 10, 50))
	assert.Equal(t, 1, ClampPageSize(0, 0, 50))
}

func TestFoodLogsAdd(t *testing.T) {
	db, mock := newMockDB(t)
	logs := NewFoodLogs(db)
	logs.newID = func() string { return "6f1c2a9e-3b7d-4c1e-9a55-2f0d7e8b1c11" }

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	calories := 250.0
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO food_logs")).
		WithArgs("6f1c2a9e-3b7d-4c1e-9a55-2f0d7e8b1c11", "user-1", "Oatmeal", "1.5", "manual",
			nil, nil, nil, calories, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp"}).AddRow(now))

	stored, err := logs.Add(context.Background(), models.FoodLog{
		ID:          "client-supplied",
		UserID:      "user-1",
		FoodName:    "Oatmeal",
		PortionSize: "1.5",
		EntryMethod: models.EntryManual,
		Timestamp:   time.Unix(0, 0),
		Nutrition:   models.Nutrition{Calories: &calories},
	})
	require.NoError(t, err)
	assert.Equal(t, "6f1c2a9e-3b7d-4c1e-9a55-2f0d7e8b1c11", stored.ID)
	assert.Equal(t, now, stored.Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFoodLogsAddRequiresUser(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := NewFoodLogs(db).Add(context.Background(), models.FoodLog{FoodName: "Oatmeal"})
	assert.Error(t, err)
}

func TestFoodLogsListPaginates(t *testing.T) {
	db, mock := newMockDB(t)
	logs := NewFoodLogs(db)

	t1 := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(-time.Hour)
	t3 := t2.Add(-time.Hour)
	ids := []string{
		"00000000-0000-0000-0000-000000000003",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000001",
	}

	// first page: 2 requested, 3 fetched
	mock.ExpectQuery(`SELECT (.+) FROM food_logs WHERE user_id = \$1\s+ORDER BY timestamp DESC, id DESC LIMIT \$2`).
		WithArgs("user-1", 3).
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow(ids[0], "user-1", "Eggs", "2", "manual", t1, nil, nil, nil, 155.0, nil, nil, nil).
			AddRow(ids[1], "user-1", "Nutella", "1 serving", "barcode", t2, nil, "3017620422003", []byte(`{"brands":"Ferrero"}`), nil, nil, nil, nil).
			AddRow(ids[2], "user-1", "Salad", "1", "ai", t3, "/uploads/a.jpg", nil, nil, nil, nil, nil, nil))

	page, err := logs.List(context.Background(), "user-1", 2, nil)
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "Eggs", page.Logs[0].FoodName)
	require.NotNil(t, page.Logs[0].Calories)
	assert.Equal(t, 155.0, *page.Logs[0].Calories)
	assert.Equal(t, models.EntryBarcode, page.Logs[1].EntryMethod)
	require.NotNil(t, page.Logs[1].Barcode)
	assert.JSONEq(t, `{"brands":"Ferrero"}`, string(page.Logs[1].APIData))

	cursor, err := DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, ids[1], cursor.ID)
	assert.True(t, t2.Equal(cursor.Timestamp))

	// second page continues strictly after the cursor
	mock.ExpectQuery(`SELECT (.+) FROM food_logs WHERE user_id = \$1 AND \(timestamp, id\) < \(\$2, \$3\)`).
		WithArgs("user-1", cursor.Timestamp, ids[1], 3).
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow(ids[2], "user-1", "Salad", "1", "ai", t3, "/uploads/a.jpg", nil, nil, nil, nil, nil, nil))

	page, err = logs.List(context.Background(), "user-1", 2, cursor)
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
	require.NotNil(t, page.Logs[0].ImageURL)
	assert.Equal(t, "/uploads/a.jpg", *page.Logs[0].ImageURL)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFoodLogsListEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT (.+) FROM food_logs`).
		WithArgs("user-1", 11).
		WillReturnRows(sqlmock.NewRows(logColumns))

	page, err := NewFoodLogs(db).List(context.Background(), "user-1", 10, nil)
	require.NoError(t, err)
	assert.NotNil(t, page.Logs, "empty pages serialize as []")
	assert.Empty(t, page.Logs)
	assert.False(t, page.HasMore)
}

func TestFoodLogsExportAll(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM food_logs f LEFT JOIN profiles p`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "email", "food_name", "portion_size", "entry_method", "timestamp",
			"barcode", "calories", "protein", "carbs", "fat",
		}).
			AddRow("00000000-0000-0000-0000-000000000001", "user-1", "a@example.com", "Eggs", "2", "manual", ts, nil, 155.0, 13.0, 1.1, 11.0).
			AddRow("00000000-0000-0000-0000-000000000002", "user-2", "", "Toast", "1", "ai", ts, nil, nil, nil, nil, nil))

	var got []ExportRow
	err := NewFoodLogs(db).ExportAll(context.Background(), func(row ExportRow) error {
		got = append(got, row)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a@example.com", got[0].Email)
	assert.Equal(t, 13.0, *got[0].Protein)
	assert.Equal(t, "", got[1].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfilesGet(t *testing.T) {
	db, mock := newMockDB(t)
	profiles := NewProfiles(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uid, email, display_name, role, created_at FROM profiles WHERE uid = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "email", "display_name", "role", "created_at"}).
			AddRow("user-1", "a@example.com", "Sam", "admin", created))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT uid, email, display_name, role, created_at FROM profiles WHERE uid = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	p, err := profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)
	assert.True(t, p.IsAdmin())

	_, err = profiles.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfilesCreate(t *testing.T) {
	db, mock := newMockDB(t)
	profiles := NewProfiles(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles (uid, email, display_name, role)")).
		WithArgs("user-1", "a@example.com", "Sam", "client").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO profiles (uid, email, display_name, role)")).
		WithArgs("user-1", "a@example.com", "Sam", "client").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	p, err := profiles.Create(context.Background(), models.DefaultProfile("user-1", "a@example.com", "Sam"))
	require.NoError(t, err)
	assert.Equal(t, created, p.CreatedAt)

	_, err = profiles.Create(context.Background(), models.DefaultProfile("user-1", "a@example.com", "Sam"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfilesUpdateDisplayName(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE profiles SET display_name = $1 WHERE uid = $2")).
		WithArgs("Samantha", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "email", "display_name", "role", "created_at"}).
			AddRow("user-1", "a@example.com", "Samantha", "client", created))

	p, err := NewProfiles(db).UpdateDisplayName(context.Background(), "user-1", "Samantha")
	require.NoError(t, err)
	assert.Equal(t, "Samantha", p.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
