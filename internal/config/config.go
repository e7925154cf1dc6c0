// Package config loads the YAML configuration for the card runner.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDashboardURL is the issuer dashboard the card script starts from.
const DefaultDashboardURL = "https://www.airwallex.com/app/dashboard-account"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Admin       AdminConfig       `yaml:"admin"`
	Security    SecurityConfig    `yaml:"security"`
	Automation  AutomationConfig  `yaml:"automation"`
	Airwallex   AirwallexConfig   `yaml:"airwallex"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	PathPrefix   string `yaml:"path_prefix"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	SessionDuration string `yaml:"session_duration"`
	BcryptCost      int    `yaml:"bcrypt_cost"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SecurityConfig holds the key used to encrypt secrets at rest
// (session state files, issuer API key, card numbers).
type SecurityConfig struct {
	EncryptionKey    string `yaml:"encryption_key"`
	MaxLoginAttempts int    `yaml:"max_login_attempts"`
	LoginWindow      string `yaml:"login_window"`
}

// AutomationConfig controls the browser runner and the card script.
type AutomationConfig struct {
	DashboardURL   string `yaml:"dashboard_url"`
	AuthDir        string `yaml:"auth_dir"`
	SessionMaxAge  string `yaml:"session_max_age"`
	NamesDir       string `yaml:"names_dir"`
	ArtifactsDir   string `yaml:"artifacts_dir"`
	Headless       bool   `yaml:"headless"`
	SlowMo         int    `yaml:"slow_mo"`
	StepTimeout    string `yaml:"step_timeout"`
	OTPTimeout     string `yaml:"otp_timeout"`
	ConfirmTimeout string `yaml:"confirm_timeout"`
}

// AirwallexConfig points the REST client at the issuer API.
type AirwallexConfig struct {
	DemoBaseURL    string `yaml:"demo_base_url"`
	ProdBaseURL    string `yaml:"prod_base_url"`
	RequestTimeout string `yaml:"request_timeout"`
}

type MaintenanceConfig struct {
	SessionCleanupSchedule string `yaml:"session_cleanup_schedule"`
}

func (c *AuthConfig) GetSessionDuration() time.Duration {
	return parseDuration(c.SessionDuration, 24*time.Hour)
}

func (c *SecurityConfig) GetMaxLoginAttempts() int {
	if c.MaxLoginAttempts <= 0 {
		return 5
	}
	return c.MaxLoginAttempts
}

func (c *SecurityConfig) GetLoginWindow() time.Duration {
	return parseDuration(c.LoginWindow, time.Minute)
}

// GetSessionMaxAge is the freshness window of a saved browser session.
func (c *AutomationConfig) GetSessionMaxAge() time.Duration {
	return parseDuration(c.SessionMaxAge, 24*time.Hour)
}

func (c *AutomationConfig) GetStepTimeout() time.Duration {
	return parseDuration(c.StepTimeout, 30*time.Second)
}

// GetOTPTimeout bounds the wait for a manual one-time passcode.
func (c *AutomationConfig) GetOTPTimeout() time.Duration {
	return parseDuration(c.OTPTimeout, 5*time.Minute)
}

// GetConfirmTimeout bounds the wait for a dry-run manual confirmation.
func (c *AutomationConfig) GetConfirmTimeout() time.Duration {
	return parseDuration(c.ConfirmTimeout, 5*time.Minute)
}

func (c *AirwallexConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	setDefaults(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/card-runner.db"
	}
	if cfg.Auth.SessionDuration == "" {
		cfg.Auth.SessionDuration = "24h"
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = "changeme"
	}
	if cfg.Automation.DashboardURL == "" {
		cfg.Automation.DashboardURL = DefaultDashboardURL
	}
	if cfg.Automation.AuthDir == "" {
		cfg.Automation.AuthDir = "./.auth"
	}
	if cfg.Automation.SessionMaxAge == "" {
		cfg.Automation.SessionMaxAge = "24h"
	}
	if cfg.Automation.NamesDir == "" {
		cfg.Automation.NamesDir = "./data/names"
	}
	if cfg.Airwallex.DemoBaseURL == "" {
		cfg.Airwallex.DemoBaseURL = "https://api-demo.airwallex.com"
	}
	if cfg.Airwallex.ProdBaseURL == "" {
		cfg.Airwallex.ProdBaseURL = "https://api.airwallex.com"
	}
	if cfg.Maintenance.SessionCleanupSchedule == "" {
		cfg.Maintenance.SessionCleanupSchedule = "@every 1h"
	}
}
