package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type EntryMethod string

const (
	EntryManual  EntryMethod = "manual"
	EntryAI      EntryMethod = "ai"
	EntryBarcode EntryMethod = "barcode"
)

// EntryMethods lists every entry method in display order.
var EntryMethods = []EntryMethod{EntryManual, EntryAI, EntryBarcode}

func (m EntryMethod) Valid() bool {
	switch m {
	case EntryManual, EntryAI, EntryBarcode:
		return true
	}
	return false
}

const (
	maxFoodNameLen    = 200
	maxPortionLen     = 100
	maxBarcodeLen     = 64
	minPortionPalms   = 0.1
	maxPortionPalms   = 20
	uploadsPathPrefix = "/uploads/"
)

// Nutrition holds the optional macro values of a log entry. Nil means unknown.
type Nutrition struct {
	Calories *float64 `json:"calories,omitempty" db:"calories"`
	Protein  *float64 `json:"protein,omitempty" db:"protein"`
	Carbs    *float64 `json:"carbs,omitempty" db:"carbs"`
	Fat      *float64 `json:"fat,omitempty" db:"fat"`
}

// FoodLog is a single recorded meal. It is never modified after creation.
type FoodLog struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	FoodName    string      `json:"food_name" db:"food_name"`
	PortionSize string      `json:"portion_size" db:"portion_size"`
	EntryMethod EntryMethod `json:"entry_method" db:"entry_method"`
	Timestamp   time.Time   `json:"timestamp" db:"timestamp"`
	ImageURL    *string     `json:"image_url,omitempty" db:"image_url"`
	Barcode     *string     `json:"barcode,omitempty" db:"barcode"`
	APIData     JSONData    `json:"api_data,omitempty" db:"api_data"`
	Nutrition
}

// FoodLogPage is one page of a user's log, newest first.
type FoodLogPage struct {
	Logs       []FoodLog `json:"logs"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// FoodLogEvent is published to Kafka whenever a log entry is stored.
type FoodLogEvent struct {
	Type        string      `json:"type"`
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	EntryMethod EntryMethod `json:"entry_method"`
	Timestamp   time.Time   `json:"timestamp"`
}

const EventFoodLogCreated = "food_log.created"

func NewFoodLogEvent(log FoodLog) FoodLogEvent {
	return FoodLogEvent{
		Type:        EventFoodLogCreated,
		ID:          log.ID,
		UserID:      log.UserID,
		EntryMethod: log.EntryMethod,
		Timestamp:   log.Timestamp,
	}
}

// JSONData is an optional raw JSON document kept in a jsonb column.
type JSONData []byte

func (j JSONData) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	// lib/pq would send []byte as bytea
	return string(j), nil
}

func (j *JSONData) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONData(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONData", src)
	}
	return nil
}

func (j JSONData) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONData) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], data...)
	return nil
}

// Portion accepts either a JSON string ("2 slices") or a JSON number (1.5).
type Portion string

func (p *Portion) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Portion(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("portion_size must be a string or a number")
	}
	*p = Portion(n.String())
	return nil
}

// CreateFoodLogRequest is the body of POST /api/food-logs
type CreateFoodLogRequest struct {
	EntryMethod EntryMethod `json:"entry_method"`
	FoodName    string      `json:"food_name"`
	PortionSize Portion     `json:"portion_size"`
	ImageURL    string      `json:"image_url,omitempty"`
	Barcode     string      `json:"barcode,omitempty"`
	APIData     JSONData    `json:"api_data,omitempty"`
	Nutrition
}

// ValidationError is returned for client input that cannot be stored.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Normalize validates the request against the rules of its entry method and
// returns the log to store. ID, UserID and Timestamp are left for the store.
func (r CreateFoodLogRequest) Normalize() (FoodLog, error) {
	if !r.EntryMethod.Valid() {
		return FoodLog{}, invalid("entry_method", "entry_method must be one of: manual, ai, barcode")
	}

	log := FoodLog{
		EntryMethod: r.EntryMethod,
		FoodName:    strings.TrimSpace(r.FoodName),
	}
	portion := strings.TrimSpace(string(r.PortionSize))

	minName := 2
	if r.EntryMethod == EntryBarcode {
		minName = 1
	}
	if n := utf8.RuneCountInString(log.FoodName); n < minName {
		if minName == 1 {
			return FoodLog{}, invalid("food_name", "Food name is required.")
		}
		return FoodLog{}, invalid("food_name", "Food name must be at least 2 characters.")
	} else if n > maxFoodNameLen {
		return FoodLog{}, invalid("food_name", "Food name must be 200 characters or less.")
	}

	switch r.EntryMethod {
	case EntryManual:
		palms, err := strconv.ParseFloat(portion, 64)
		if err != nil || !isFinite(palms) {
			return FoodLog{}, invalid("portion_size", "Portion size must be a number of palm-sized portions.")
		}
		if palms < minPortionPalms {
			return FoodLog{}, invalid("portion_size", "Portion must be at least 0.1.")
		}
		if palms > maxPortionPalms {
			return FoodLog{}, invalid("portion_size", "Portion size seems too large (max 20 palms).")
		}
		log.PortionSize = strconv.FormatFloat(palms, 'f', -1, 64)

	case EntryAI, EntryBarcode:
		if portion == "" {
			return FoodLog{}, invalid("portion_size", "Portion size is required.")
		}
		if utf8.RuneCountInString(portion) > maxPortionLen {
			return FoodLog{}, invalid("portion_size", "Portion size must be 100 characters or less.")
		}
		log.PortionSize = portion
	}

	if r.EntryMethod == EntryAI {
		if img := strings.TrimSpace(r.ImageURL); img != "" {
			name, ok := strings.CutPrefix(img, uploadsPathPrefix)
			if !ok || name == "" || path.Base(name) != name || name == ".." {
				return FoodLog{}, invalid("image_url", "image_url must reference an analyzed upload.")
			}
			log.ImageURL = &img
		}
	}

	if r.EntryMethod == EntryBarcode {
		code := strings.TrimSpace(r.Barcode)
		if code == "" {
			return FoodLog{}, invalid("barcode", "Please enter or scan a valid barcode.")
		}
		if len(code) > maxBarcodeLen {
			return FoodLog{}, invalid("barcode", "Barcode must be 64 characters or less.")
		}
		log.Barcode = &code
		if len(r.APIData) > 0 {
			if !json.Valid(r.APIData) {
				return FoodLog{}, invalid("api_data", "api_data must be valid JSON.")
			}
			log.APIData = r.APIData
		}
	}

	nutrition, err := r.Nutrition.normalize()
	if err != nil {
		return FoodLog{}, err
	}
	log.Nutrition = nutrition

	return log, nil
}

// normalize drops zero values, which the entry forms send for empty inputs.
func (n Nutrition) normalize() (Nutrition, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"calories", n.Calories},
		{"protein", n.Protein},
		{"carbs", n.Carbs},
		{"fat", n.Fat},
	}
	out := make([]*float64, len(fields))
	for i, f := range fields {
		if f.v == nil || *f.v == 0 {
			continue
		}
		if !isFinite(*f.v) {
			return Nutrition{}, invalid(f.name, "%s must be a number.", f.name)
		}
		if *f.v < 0 {
			return Nutrition{}, invalid(f.name, "%s cannot be negative.", f.name)
		}
		v := *f.v
		out[i] = &v
	}
	return Nutrition{Calories: out[0], Protein: out[1], Carbs: out[2], Fat: out[3]}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsEmpty reports whether no macro value is known.
func (n Nutrition) IsEmpty() bool {
	return n.Calories == nil && n.Protein == nil && n.Carbs == nil && n.Fat == nil
}
