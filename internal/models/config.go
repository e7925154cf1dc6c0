package models

import (
	"encoding/json"
	"time"
)

// Config is a named bundle of automation settings. Settings are stored as an
// opaque JSON object and only validated when a run is started.
type Config struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Settings  string    `json:"settings"`
}

// ConfigWithRunCount is a list entry carrying how many runs a config owns.
type ConfigWithRunCount struct {
	Config
	RunCount int `json:"run_count"`
}

// ConfigWithRuns is a config with its most recent runs.
type ConfigWithRuns struct {
	Config
	Runs []Run `json:"runs"`
}

type CreateConfigRequest struct {
	Name     string          `json:"name" binding:"required"`
	Settings json.RawMessage `json:"settings"`
}

type UpdateConfigRequest struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

// ConfigBackup is a config exported without its ID.
type ConfigBackup struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings"`
}

// BackupData represents the full export document.
type BackupData struct {
	Version    string         `json:"version"`
	ExportedAt string         `json:"exported_at"`
	Configs    []ConfigBackup `json:"configs"`
}
