package models

import "time"

// Settings holds the issuer API credentials. There is a single row with
// ID "default".
type Settings struct {
	UpdatedAt    time.Time `json:"updated_at"`
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	APIKey       string    `json:"api_key"`
	Env          string    `json:"env"`
	CardholderID string    `json:"cardholder_id"`
	HasAPIKey    bool      `json:"has_api_key"`
}

// UpdateSettingsRequest only changes the fields that are present.
type UpdateSettingsRequest struct {
	ClientID     *string `json:"client_id"`
	APIKey       *string `json:"api_key"`
	Env          *string `json:"env" binding:"omitempty,oneof=demo prod"`
	CardholderID *string `json:"cardholder_id"`
}

type Cardholder struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type CardholderList struct {
	Cardholders []Cardholder `json:"cardholders"`
	HasMore     bool         `json:"has_more"`
	Page        int          `json:"page"`
	PageSize    int          `json:"page_size"`
}
