package services_test

import (
	"path/filepath"
	"testing"

	"github.com/pandeptwidyaop/card-runner/internal/config"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/services"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			BcryptCost:      4,
			SessionDuration: "1h",
		},
		Admin: config.AdminConfig{
			Username: "admin",
			Password: "admin123",
		},
	}
}

func testCrypto(t *testing.T) *services.CryptoService {
	t.Helper()
	crypto, err := services.NewCryptoService([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}
	return crypto
}

func createConfig(t *testing.T, svc *services.ConfigService, name, settings string) *models.Config {
	t.Helper()
	cfg, err := svc.Create(&models.CreateConfigRequest{Name: name, Settings: []byte(settings)})
	if err != nil {
		t.Fatalf("failed to create config: %v", err)
	}
	return cfg
}
