package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/validation"
)

var (
	ErrConfigNotFound    = errors.New("config not found")
	ErrSettingsNotObject = errors.New("settings must be a JSON object")
)

// recentRunsPerConfig is how many runs GetWithRuns includes.
const recentRunsPerConfig = 10

type ConfigService struct {
	db *database.DB
}

func NewConfigService(db *database.DB) *ConfigService {
	return &ConfigService{db: db}
}

// normalizeSettings returns the stored form of a settings document. An
// empty document becomes "{}".
func normalizeSettings(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "{}", nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
		return "", ErrSettingsNotObject
	}
	return string(trimmed), nil
}

func (s *ConfigService) List() ([]models.ConfigWithRunCount, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.name, c.settings, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM runs r WHERE r.config_id = c.id) as run_count
		FROM configs c
		ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]models.ConfigWithRunCount, 0)
	for rows.Next() {
		var c models.ConfigWithRunCount
		if err := rows.Scan(&c.ID, &c.Name, &c.Settings, &c.CreatedAt, &c.UpdatedAt, &c.RunCount); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *ConfigService) Get(id string) (*models.Config, error) {
	var c models.Config
	err := s.db.QueryRow(
		"SELECT id, name, settings, created_at, updated_at FROM configs WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Name, &c.Settings, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetWithRuns returns a config and its most recent runs.
func (s *ConfigService) GetWithRuns(id string) (*models.ConfigWithRuns, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM runs r
		WHERE r.config_id = ?
		ORDER BY r.started_at DESC
		LIMIT ?
	`, id, recentRunsPerConfig)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &models.ConfigWithRuns{Config: *c, Runs: make([]models.Run, 0)}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result.Runs = append(result.Runs, *run)
	}
	return result, rows.Err()
}

func (s *ConfigService) Create(req *models.CreateConfigRequest) (*models.Config, error) {
	name := strings.TrimSpace(req.Name)
	if err := validation.ValidateConfigName(name); err != nil {
		return nil, err
	}
	settings, err := normalizeSettings(req.Settings)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now()
	_, err = s.db.Exec(
		"INSERT INTO configs (id, name, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, name, settings, now, now,
	)
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Update changes the name and/or settings of a config. Omitted fields keep
// their current value.
func (s *ConfigService) Update(id string, req *models.UpdateConfigRequest) (*models.Config, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		if err := validation.ValidateConfigName(name); err != nil {
			return nil, err
		}
		c.Name = name
	}
	if len(bytes.TrimSpace(req.Settings)) > 0 {
		settings, err := normalizeSettings(req.Settings)
		if err != nil {
			return nil, err
		}
		c.Settings = settings
	}

	_, err = s.db.Exec(
		"UPDATE configs SET name = ?, settings = ?, updated_at = ? WHERE id = ?",
		c.Name, c.Settings, time.Now(), id,
	)
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Delete removes a config and, through the foreign key, all of its runs.
func (s *ConfigService) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM configs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConfigNotFound
	}
	return nil
}

// Export returns every config in a portable document.
func (s *ConfigService) Export(version string) (*models.BackupData, error) {
	configs, err := s.List()
	if err != nil {
		return nil, err
	}

	backup := &models.BackupData{
		Version:    version,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Configs:    make([]models.ConfigBackup, 0, len(configs)),
	}
	for _, c := range configs {
		backup.Configs = append(backup.Configs, models.ConfigBackup{
			Name:     c.Name,
			Settings: json.RawMessage(c.Settings),
		})
	}
	return backup, nil
}

// ImportResult reports how an import was applied.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Import creates configs from a backup. A config whose name already exists
// is overwritten when overwrite is set and skipped otherwise.
func (s *ConfigService) Import(backup *models.BackupData, overwrite bool) (*ImportResult, error) {
	existing, err := s.List()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[c.Name] = c.ID
	}

	result := &ImportResult{}
	for _, b := range backup.Configs {
		if b.Name == "" {
			result.Errors = append(result.Errors, "config without a name skipped")
			result.Skipped++
			continue
		}

		if id, ok := byName[b.Name]; ok {
			if !overwrite {
				result.Skipped++
				continue
			}
			if _, err := s.Update(id, &models.UpdateConfigRequest{Settings: b.Settings}); err != nil {
				result.Errors = append(result.Errors, b.Name+": "+err.Error())
				continue
			}
			result.Updated++
			continue
		}

		created, err := s.Create(&models.CreateConfigRequest{Name: b.Name, Settings: b.Settings})
		if err != nil {
			result.Errors = append(result.Errors, b.Name+": "+err.Error())
			continue
		}
		byName[created.Name] = created.ID
		result.Created++
	}
	return result, nil
}
