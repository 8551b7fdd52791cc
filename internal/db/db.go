package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultPath is the default journal location
const DefaultPath = "/var/lib/zman/history.db"

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

// New opens or creates the SQLite database at the given path
func New(path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// zman-helper and zman may both append; WAL keeps readers unblocked
	if _, err := conn.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// migrate runs the database schema migrations
func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = d.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := d.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// migrationV1 creates the journal schema
const migrationV1 = `
-- Every privileged document write, including no-op writes
CREATE TABLE IF NOT EXISTS config_writes (
    id INTEGER PRIMARY KEY,
    operation_id TEXT,
    path TEXT NOT NULL,
    changed INTEGER NOT NULL,
    backup_path TEXT,
    diff TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_writes_path ON config_writes(path);
CREATE INDEX IF NOT EXISTS idx_writes_time ON config_writes(timestamp);

-- systemd unit operations issued through the privileged writer
CREATE TABLE IF NOT EXISTS unit_operations (
    id INTEGER PRIMARY KEY,
    operation_id TEXT,
    action TEXT NOT NULL,
    service TEXT,
    success INTEGER NOT NULL,
    message TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_units_service ON unit_operations(service);
CREATE INDEX IF NOT EXISTS idx_units_time ON unit_operations(timestamp);
`

// ConfigWrite is one journaled document write
type ConfigWrite struct {
	ID          int64     `json:"id"`
	OperationID string    `json:"operation_id,omitempty"`
	Path        string    `json:"path"`
	Changed     bool      `json:"changed"`
	BackupPath  string    `json:"backup_path,omitempty"`
	Diff        string    `json:"diff,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// UnitOperation is one journaled systemctl call
type UnitOperation struct {
	ID          int64     `json:"id"`
	OperationID string    `json:"operation_id,omitempty"`
	Action      string    `json:"action"`
	Service     string    `json:"service,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
