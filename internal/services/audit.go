package services

import (
	"encoding/json"
	"log"

	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/models"
)

// Audit resource types.
const (
	ResourceAuth     = "auth"
	ResourceConfig   = "config"
	ResourceRun      = "run"
	ResourceCard     = "card"
	ResourceSettings = "settings"
)

// AuditService records who did what through the API.
type AuditService struct {
	db *database.DB
}

func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

// AuditLog is an entry to be recorded.
type AuditLog struct {
	UserID       *int64
	Details      map[string]interface{}
	Username     string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
}

// Log records an entry. Failures are logged and returned but callers
// generally ignore them so auditing never fails a request.
func (s *AuditService) Log(entry AuditLog) error {
	var detailsJSON string
	if entry.Details != nil {
		if b, err := json.Marshal(entry.Details); err == nil {
			detailsJSON = string(b)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_logs (user_id, username, action, resource_type, resource_id, ip_address, user_agent, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.Username, entry.Action, entry.ResourceType, entry.ResourceID, entry.IPAddress, entry.UserAgent, detailsJSON)
	if err != nil {
		log.Printf("[Audit] Failed to record %s %s: %v", entry.Action, entry.ResourceType, err)
	}
	return err
}

// LogLogin records a login attempt. user may be nil for unknown usernames.
func (s *AuditService) LogLogin(user *models.User, username, ip, userAgent string, success bool) {
	action := "login_success"
	if !success {
		action = "login_failed"
	}

	entry := AuditLog{
		Username:     username,
		Action:       action,
		ResourceType: ResourceAuth,
		IPAddress:    ip,
		UserAgent:    userAgent,
	}
	if user != nil {
		entry.UserID = &user.ID
	}
	s.Log(entry)
}

func (s *AuditService) LogLogout(user *models.User, ip, userAgent string) {
	s.Log(AuditLog{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       "logout",
		ResourceType: ResourceAuth,
		IPAddress:    ip,
		UserAgent:    userAgent,
	})
}

// LogAction records an action by an authenticated user on a resource.
func (s *AuditService) LogAction(user *models.User, action, resourceType, resourceID string, details map[string]interface{}, ip, userAgent string) {
	entry := AuditLog{
		Details:      details,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Username:     "system",
	}
	if user != nil {
		entry.UserID = &user.ID
		entry.Username = user.Username
	}
	s.Log(entry)
}

// AuditLogEntry is a recorded entry.
type AuditLogEntry struct {
	UserID       *int64 `json:"user_id"`
	Username     string `json:"username"`
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	IPAddress    string `json:"ip_address"`
	UserAgent    string `json:"user_agent"`
	Details      string `json:"details"`
	CreatedAt    string `json:"created_at"`
	ID           int64  `json:"id"`
}

// GetLogs returns entries newest first, optionally for one resource type.
func (s *AuditService) GetLogs(resourceType string, limit, offset int) ([]AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, user_id, username, action, resource_type, resource_id, ip_address, user_agent, details, created_at
		FROM audit_logs`
	args := []any{}
	if resourceType != "" {
		query += " WHERE resource_type = ?"
		args = append(args, resourceType)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]AuditLogEntry, 0)
	for rows.Next() {
		var e AuditLogEntry
		var resourceID, ipAddress, userAgent, details *string

		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Action, &e.ResourceType,
			&resourceID, &ipAddress, &userAgent, &details, &e.CreatedAt); err != nil {
			return nil, err
		}

		if resourceID != nil {
			e.ResourceID = *resourceID
		}
		if ipAddress != nil {
			e.IPAddress = *ipAddress
		}
		if userAgent != nil {
			e.UserAgent = *userAgent
		}
		if details != nil {
			e.Details = *details
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}
