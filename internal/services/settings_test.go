package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

func strPtr(s string) *string { return &s }

func TestSettingsService_GetCreatesDefaults(t *testing.T) {
	svc := services.NewSettingsService(setupTestDB(t), testCrypto(t))

	st, err := svc.Get()
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if st.ID != "default" || st.Env != "demo" {
		t.Errorf("unexpected defaults %+v", st)
	}
	if st.HasAPIKey || st.APIKey != "" {
		t.Errorf("expected no api key, got %+v", st)
	}
}

func TestSettingsService_UpdateMasksAndEncrypts(t *testing.T) {
	db := setupTestDB(t)
	svc := services.NewSettingsService(db, testCrypto(t))

	st, err := svc.Update(&models.UpdateSettingsRequest{
		ClientID: strPtr(" client-1 "),
		APIKey:   strPtr("sk_live_abcdef1234"),
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if st.ClientID != "client-1" {
		t.Errorf("expected trimmed client id, got %q", st.ClientID)
	}
	if !st.HasAPIKey {
		t.Error("expected has_api_key")
	}
	if !strings.HasSuffix(st.APIKey, "1234") || strings.Contains(st.APIKey, "sk_live") {
		t.Errorf("expected masked key, got %q", st.APIKey)
	}

	var stored string
	if err := db.QueryRow("SELECT api_key FROM settings WHERE id = 'default'").Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == "" || strings.Contains(stored, "abcdef1234") {
		t.Errorf("api key must be encrypted at rest, got %q", stored)
	}

	// Omitted fields are kept.
	st, err = svc.Update(&models.UpdateSettingsRequest{Env: strPtr("prod")})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if st.Env != "prod" || st.ClientID != "client-1" || !st.HasAPIKey {
		t.Errorf("unexpected settings after partial update %+v", st)
	}
}

func TestSettingsService_Credentials(t *testing.T) {
	svc := services.NewSettingsService(setupTestDB(t), testCrypto(t))

	if _, err := svc.Credentials(true); !errors.Is(err, services.ErrSettingsNotConfigured) {
		t.Errorf("expected ErrSettingsNotConfigured, got %v", err)
	}

	steps := []struct {
		req  models.UpdateSettingsRequest
		want error
	}{
		{models.UpdateSettingsRequest{Env: strPtr("demo")}, services.ErrClientIDMissing},
		{models.UpdateSettingsRequest{ClientID: strPtr("client-1")}, services.ErrAPIKeyMissing},
		{models.UpdateSettingsRequest{APIKey: strPtr("secret-key")}, services.ErrCardholderMissing},
	}
	for _, step := range steps {
		if _, err := svc.Update(&step.req); err != nil {
			t.Fatalf("update: %v", err)
		}
		_, err := svc.Credentials(true)
		if !errors.Is(err, step.want) {
			t.Errorf("expected %v, got %v", step.want, err)
		}
		if !services.IsSettingsError(err) {
			t.Errorf("expected %v to be a settings error", err)
		}
	}

	creds, err := svc.Credentials(false)
	if err != nil {
		t.Fatalf("credentials without cardholder: %v", err)
	}
	if creds.APIKey != "secret-key" {
		t.Errorf("expected decrypted api key, got %q", creds.APIKey)
	}

	if _, err := svc.Update(&models.UpdateSettingsRequest{CardholderID: strPtr("ch_1")}); err != nil {
		t.Fatal(err)
	}
	creds, err = svc.Credentials(true)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.ClientID != "client-1" || creds.CardholderID != "ch_1" || creds.Env != "demo" {
		t.Errorf("unexpected credentials %+v", creds)
	}
}

func TestIsSettingsError(t *testing.T) {
	if services.IsSettingsError(errors.New("boom")) {
		t.Error("unrelated errors are not settings errors")
	}
	if !services.IsSettingsError(services.ErrAPIKeyMissing) {
		t.Error("expected ErrAPIKeyMissing to be a settings error")
	}
}
