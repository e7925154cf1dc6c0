package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pandeptwidyaop/card-runner/internal/config"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

// AuthService manages operator accounts and their cookie sessions.
type AuthService struct {
	db  *database.DB
	cfg *config.Config
}

func NewAuthService(db *database.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.Auth.BcryptCost)
	return string(b), err
}

func (s *AuthService) CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) CreateUser(username, password string, isAdmin bool) (*models.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		"INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)",
		username, hash, isAdmin,
	)
	if err != nil {
		return nil, ErrUserExists
	}

	id, _ := result.LastInsertId()
	return s.GetUserByID(id)
}

func (s *AuthService) getUser(where string, arg any) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, is_admin, created_at, updated_at FROM users WHERE "+where+" = ?",
		arg,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) GetUserByID(id int64) (*models.User, error) {
	return s.getUser("id", id)
}

func (s *AuthService) GetUserByUsername(username string) (*models.User, error) {
	return s.getUser("username", username)
}

// Login checks the password and starts a new session. Older sessions of
// the user are dropped.
func (s *AuthService) Login(username, password string) (*models.Session, *models.User, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !s.CheckPassword(password, user.PasswordHash) {
		return nil, user, ErrInvalidCredentials
	}

	if _, err := s.db.Exec("DELETE FROM sessions WHERE user_id = ?", user.ID); err != nil {
		return nil, user, err
	}

	session, err := s.CreateSession(user.ID)
	if err != nil {
		return nil, user, err
	}
	return session, user, nil
}

func (s *AuthService) CreateSession(userID int64) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.Auth.GetSessionDuration()),
		CreatedAt: now,
	}

	_, err := s.db.Exec(
		"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *AuthService) ValidateSession(sessionID string) (*models.User, error) {
	var session models.Session
	err := s.db.QueryRow(
		"SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.DeleteSession(sessionID)
		return nil, ErrSessionExpired
	}

	return s.GetUserByID(session.UserID)
}

func (s *AuthService) DeleteSession(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

// CleanExpiredSessions deletes expired sessions and returns how many.
func (s *AuthService) CleanExpiredSessions() (int64, error) {
	result, err := s.db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ChangePassword replaces the password of a user after checking the old one.
// All sessions of the user are dropped.
func (s *AuthService) ChangePassword(userID int64, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !s.CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		hash, time.Now(), userID,
	); err != nil {
		return err
	}
	_, err = s.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

func generatePassword(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:length], nil
}

// EnsureAdminUser creates the configured admin account on first start. The
// placeholder password "changeme" is replaced by a generated one.
func (s *AuthService) EnsureAdminUser() error {
	_, err := s.GetUserByUsername(s.cfg.Admin.Username)
	if err != ErrUserNotFound {
		return err
	}

	password := s.cfg.Admin.Password
	if password == "changeme" {
		password, err = generatePassword(16)
		if err != nil {
			return err
		}
		log.Printf("WARNING: Default admin password detected!")
		log.Printf("Generated admin password: %s", password)
		log.Printf("Username: %s (save this password, it is shown only once)", s.cfg.Admin.Username)
	}

	_, err = s.CreateUser(s.cfg.Admin.Username, password, true)
	return err
}
