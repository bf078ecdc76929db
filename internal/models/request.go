package models

// SignupRequest holds the data needed to create an account
type SignupRequest struct {
	Email       string `json:"email" example:"user@example.com"`
	Password    string `json:"password" example:"password123"`
	DisplayName string `json:"display_name" example:"Sam"`
}

// LoginRequest represents the login credentials
type LoginRequest struct {
	// User's email address
	Email string `json:"email" example:"user@example.com"`
	// User's password
	Password string `json:"password" example:"password123"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	// JWT token for authentication
	Token     string          `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType string          `json:"type" example:"Bearer"`
	Profile   ProfileResponse `json:"profile"`
}

// AnalyzeImageRequest carries a meal photo as a data URI when it is not sent as multipart.
type AnalyzeImageRequest struct {
	PhotoDataURI string `json:"photo_data_uri"`
}

// AnalyzeImageResponse pre-fills the AI entry form
type AnalyzeImageResponse struct {
	Description  string   `json:"description"`
	PortionSize  string   `json:"portion_size"`
	PortionPalms *float64 `json:"portion_palms,omitempty"`
	ImageURL     string   `json:"image_url"`
}

// ProductLookupResponse pre-fills the barcode entry form
type ProductLookupResponse struct {
	Found         bool        `json:"found"`
	Barcode       string      `json:"barcode"`
	FoodName      string      `json:"food_name"`
	PortionSize   string      `json:"portion_size"`
	Brands        string      `json:"brands,omitempty"`
	Quantity      string      `json:"quantity,omitempty"`
	ImageURL      string      `json:"image_url,omitempty"`
	Nutrition     Nutrition   `json:"nutrition"`
	StatusVerbose string      `json:"status_verbose,omitempty"`
	Product       interface{} `json:"product,omitempty"`
}

// AdminStats feeds the admin dashboard cards
type AdminStats struct {
	TotalUsers           int            `json:"total_users"`
	TotalEntries         int            `json:"total_entries"`
	EntriesToday         int            `json:"entries_today"`
	EntriesTodayByMethod map[string]int `json:"entries_today_by_method"`
	ActiveUsersToday     int            `json:"active_users_today"`
	Date                 string         `json:"date"`
}
