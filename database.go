package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// OperatorRow represents an operator account
type OperatorRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// BattleRow is one finished battle
type BattleRow struct {
	ID         int64     `json:"id"`
	SID        string    `json:"sid"`
	Name       string    `json:"name"`
	Operator   string    `json:"operator"`
	Winner     string    `json:"winner"`
	Steps      int       `json:"steps"`
	Blue       int       `json:"blue"`
	Red        int       `json:"red"`
	DurationMs int64     `json:"ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS battles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sid TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		operator TEXT NOT NULL DEFAULT '',
		winner TEXT NOT NULL DEFAULT '',
		steps INTEGER NOT NULL DEFAULT 0,
		blue INTEGER NOT NULL DEFAULT 0,
		red INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		operator_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_battles_created ON battles(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_type_time ON analytics_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreateOperator creates an operator account and returns its ID
func (db *DB) CreateOperator(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO operators (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOperatorByUsername returns an operator, or nil if none exists
func (db *DB) GetOperatorByUsername(username string) (*OperatorRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM operators WHERE username = ?",
		username,
	)
	o := &OperatorRow{}
	err := row.Scan(&o.ID, &o.Username, &o.PassHash, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM operators WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetSetting returns a setting value, or "" if unset
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("DB get setting %s: %v", key, err)
	}
	return value
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// RecordBattle stores a finished battle and returns its row ID
func (db *DB) RecordBattle(r BattleResult) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO battles (sid, name, operator, winner, steps, blue, red, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SID, r.Name, r.Operator, r.Winner, r.Steps, r.Blue, r.Red, r.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentBattles returns the most recently finished battles, newest first
func (db *DB) RecentBattles(limit int) ([]BattleRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, sid, name, operator, winner, steps, blue, red, duration_ms, created_at
		FROM battles
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []BattleRow{}
	for rows.Next() {
		var r BattleRow
		if err := rows.Scan(&r.ID, &r.SID, &r.Name, &r.Operator, &r.Winner, &r.Steps, &r.Blue, &r.Red, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
