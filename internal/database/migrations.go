package database

import (
	"database/sql"
	"fmt"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"create_users", `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},

	{"create_sessions", `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},

	{"create_configs", `CREATE TABLE IF NOT EXISTS configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		settings TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},

	{"create_runs", `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		output TEXT NOT NULL DEFAULT '',
		error TEXT,
		headless BOOLEAN NOT NULL DEFAULT FALSE,
		cards_attempted INTEGER NOT NULL DEFAULT 0,
		cards_created INTEGER NOT NULL DEFAULT 0,
		cards_failed INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (config_id) REFERENCES configs(id) ON DELETE CASCADE
	)`},

	{"create_cards", `CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		issuer_card_id TEXT UNIQUE NOT NULL,
		nickname TEXT NOT NULL,
		card_number TEXT NOT NULL,
		cvv TEXT NOT NULL,
		expiry_month INTEGER NOT NULL,
		expiry_year INTEGER NOT NULL,
		name_on_card TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},

	{"create_settings", `CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL DEFAULT '',
		env TEXT NOT NULL DEFAULT 'demo',
		cardholder_id TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},

	{"create_audit_logs", `CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		username TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT,
		ip_address TEXT,
		user_agent TEXT,
		details TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},

	{"index_sessions_expires_at", `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`},
	{"index_runs_config_id", `CREATE INDEX IF NOT EXISTS idx_runs_config_id ON runs(config_id)`},
	{"index_runs_status", `CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`},
	{"index_runs_started_at", `CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`},
	{"index_cards_status", `CREATE INDEX IF NOT EXISTS idx_cards_status ON cards(status)`},
	{"index_audit_logs_created_at", `CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`},
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration TEXT UNIQUE NOT NULL,
		batch INTEGER NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func recordMigration(db *sql.DB, name string, batch int) error {
	_, err := db.Exec("INSERT INTO migrations (migration, batch) VALUES (?, ?)", name, batch)
	return err
}

func hasMigrationRun(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE migration = ?", name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func nextBatch(db *sql.DB) (int, error) {
	var batch sql.NullInt64
	if err := db.QueryRow("SELECT MAX(batch) FROM migrations").Scan(&batch); err != nil {
		return 0, err
	}
	return int(batch.Int64) + 1, nil
}

func runMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	batch, err := nextBatch(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		done, err := hasMigrationRun(db, m.name)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if err := recordMigration(db, m.name, batch); err != nil {
			return err
		}
	}
	return nil
}
