// Package database opens the SQLite store of configs, runs, cards and
// accounts and applies its migrations.
package database

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"

	// SQLite driver for database/sql
	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMillis lets concurrent runs wait for the write lock instead of
// failing with SQLITE_BUSY when they record their outcome.
const busyTimeoutMillis = "5000"

type DB struct {
	*sql.DB
}

// New opens the database at dbPath, creating its directory if needed.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", busyTimeoutMillis)
	q.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + q.Encode()
}

// Migrate applies the migrations that have not run yet.
func (db *DB) Migrate() error {
	return runMigrations(db.DB)
}
