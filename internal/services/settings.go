package services

import (
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pandeptwidyaop/card-runner/internal/airwallex"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/models"
)

const defaultSettingsID = "default"

var (
	ErrSettingsNotConfigured = errors.New("Airwallex settings not configured. Please go to Settings to configure your API credentials.")
	ErrClientIDMissing       = errors.New("Airwallex Client ID not configured. Please go to Settings to add it.")
	ErrAPIKeyMissing         = errors.New("Airwallex API Key not configured. Please go to Settings to add it.")
	ErrCardholderMissing     = errors.New("Airwallex Cardholder ID not configured. Please go to Settings to add it.")
)

// SettingsService stores the issuer API credentials in a single row. The
// API key is encrypted at rest and masked when read back.
type SettingsService struct {
	db     *database.DB
	crypto *CryptoService
}

func NewSettingsService(db *database.DB, crypto *CryptoService) *SettingsService {
	return &SettingsService{db: db, crypto: crypto}
}

func (s *SettingsService) load() (*models.Settings, error) {
	var st models.Settings
	err := s.db.QueryRow(
		"SELECT id, client_id, api_key, env, cardholder_id, updated_at FROM settings WHERE id = ?",
		defaultSettingsID,
	).Scan(&st.ID, &st.ClientID, &st.APIKey, &st.Env, &st.CardholderID, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if st.APIKey != "" {
		key, err := s.crypto.Decrypt(st.APIKey)
		if err != nil {
			return nil, err
		}
		st.APIKey = key
	}
	return &st, nil
}

// Get returns the settings with the API key masked, creating the default
// row on first use.
func (s *SettingsService) Get() (*models.Settings, error) {
	st, err := s.load()
	if err == sql.ErrNoRows {
		if _, err := s.db.Exec("INSERT INTO settings (id, updated_at) VALUES (?, ?)", defaultSettingsID, time.Now()); err != nil {
			return nil, err
		}
		st, err = s.load()
	}
	if err != nil {
		return nil, err
	}

	st.HasAPIKey = st.APIKey != ""
	st.APIKey = maskSecret(st.APIKey)
	return st, nil
}

// Update changes only the fields present in req.
func (s *SettingsService) Update(req *models.UpdateSettingsRequest) (*models.Settings, error) {
	current, err := s.load()
	if err == sql.ErrNoRows {
		current = &models.Settings{ID: defaultSettingsID, Env: airwallex.EnvDemo}
	} else if err != nil {
		return nil, err
	}

	if req.ClientID != nil {
		current.ClientID = strings.TrimSpace(*req.ClientID)
	}
	if req.APIKey != nil {
		current.APIKey = strings.TrimSpace(*req.APIKey)
	}
	if req.Env != nil {
		current.Env = *req.Env
	}
	if req.CardholderID != nil {
		current.CardholderID = strings.TrimSpace(*req.CardholderID)
	}

	encKey, err := s.crypto.Encrypt(current.APIKey)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO settings (id, client_id, api_key, env, cardholder_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			api_key = excluded.api_key,
			env = excluded.env,
			cardholder_id = excluded.cardholder_id,
			updated_at = excluded.updated_at
	`, defaultSettingsID, current.ClientID, encKey, current.Env, current.CardholderID, time.Now())
	if err != nil {
		return nil, err
	}
	return s.Get()
}

// Credentials returns the decrypted API credentials. Listing cardholders
// does not need a cardholder ID, so requireCardholder can be turned off.
func (s *SettingsService) Credentials(requireCardholder bool) (airwallex.Credentials, error) {
	st, err := s.load()
	if err == sql.ErrNoRows {
		return airwallex.Credentials{}, ErrSettingsNotConfigured
	}
	if err != nil {
		return airwallex.Credentials{}, err
	}

	switch {
	case st.ClientID == "":
		return airwallex.Credentials{}, ErrClientIDMissing
	case st.APIKey == "":
		return airwallex.Credentials{}, ErrAPIKeyMissing
	case requireCardholder && st.CardholderID == "":
		return airwallex.Credentials{}, ErrCardholderMissing
	}

	return airwallex.Credentials{
		ClientID:     st.ClientID,
		APIKey:       st.APIKey,
		Env:          st.Env,
		CardholderID: st.CardholderID,
	}, nil
}

// IsSettingsError reports whether err means the credentials are incomplete.
func IsSettingsError(err error) bool {
	return errors.Is(err, ErrSettingsNotConfigured) || errors.Is(err, ErrClientIDMissing) ||
		errors.Is(err, ErrAPIKeyMissing) || errors.Is(err, ErrCardholderMissing)
}

// maskSecret keeps only the last four characters visible.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	n := utf8.RuneCountInString(secret)
	if n <= 4 {
		return secret
	}
	runes := []rune(secret)
	return strings.Repeat("•", n-4) + string(runes[n-4:])
}
